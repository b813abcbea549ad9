package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/core/history"
	"github.com/hay-kot/gltodo/internal/engine"
	"github.com/hay-kot/gltodo/internal/printer"
	"github.com/hay-kot/gltodo/pkg/iojson"
)

type SyncCmd struct {
	flags *Flags

	// sync flags
	full     bool
	watch    bool
	interval time.Duration
	json     bool

	// log flags
	failed bool
	limit  int
}

// NewSyncCmd creates a new sync command.
func NewSyncCmd(flags *Flags) *SyncCmd {
	return &SyncCmd{flags: flags}
}

// Register adds the sync command to the application.
func (cmd *SyncCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sync",
		Usage:     "Reconcile the local cache with GitLab",
		UsageText: "gltodo sync [--full] [--watch [--interval 30s]] [--json]",
		Description: `Fetches the to-do feed, merges it into the local cache and delivers
queued done mutations. An incremental pass reads at most sync.page_budget
pages and resumes where the previous one stopped; --full reads the whole
feed and marks items resolved elsewhere as done.

With --watch a pass runs immediately and then every interval until
interrupted. Failed passes are reported and retried on the next tick;
authentication failures stop the loop.

Examples:
  gltodo sync
  gltodo sync --full
  gltodo sync --watch --interval 1m
  gltodo sync --json | jq .added`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "full",
				Usage:       "ignore the cursor and read the whole feed",
				Destination: &cmd.full,
			},
			&cli.BoolFlag{
				Name:        "watch",
				Aliases:     []string{"w"},
				Usage:       "keep syncing every interval",
				Destination: &cmd.watch,
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "time between passes with --watch (defaults to sync.watch_interval)",
				Destination: &cmd.interval,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print one JSON report per pass",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
		Commands: []*cli.Command{
			{
				Name:      "log",
				Usage:     "Show recent sync passes",
				UsageText: "gltodo sync log [--failed] [--limit n] [--json]",
				Description: `Lists recorded sync passes for the account, newest first.

Examples:
  gltodo sync log
  gltodo sync log --failed`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "failed",
						Usage:       "only show passes that failed",
						Destination: &cmd.failed,
					},
					&cli.IntFlag{
						Name:        "limit",
						Aliases:     []string{"n"},
						Usage:       "maximum entries to show (0 for all)",
						Value:       10,
						Destination: &cmd.limit,
					},
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "print entries as JSON lines",
						Destination: &cmd.json,
					},
				},
				Action: cmd.runLog,
			},
		},
	})

	return app
}

func (cmd *SyncCmd) run(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	out := c.Root().Writer

	report := func(r engine.Report, err error) {
		if err != nil {
			p.Errorf("sync %s: %v", account.Name, err)
			return
		}
		if cmd.json {
			_ = iojson.WriteLine(out, r)
			return
		}
		printReport(p, r)
	}

	if !cmd.watch {
		r, err := cmd.flags.Engine.Sync(ctx, account, engine.SyncOptions{Full: cmd.full})
		if err != nil {
			return fmt.Errorf("sync %s: %w", account.Name, err)
		}
		report(r, nil)
		return nil
	}

	interval := cmd.interval
	if interval <= 0 {
		interval = cmd.flags.Config.Sync.WatchInterval
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cmd.json {
		p.Infof("watching %s every %s, press ctrl-c to stop", account.Name, interval)
	}

	first := engine.SyncOptions{Full: cmd.full}
	if err := cmd.flags.Engine.Watch(ctx, account, interval, first, report); err != nil {
		return fmt.Errorf("sync %s: %w", account.Name, err)
	}
	return nil
}

func printReport(p *printer.Printer, r engine.Report) {
	kind := "incremental"
	if r.Full {
		kind = "full"
	}

	if r.Recovered != "" {
		p.Warnf("cache was corrupt, moved to %s and rebuilt", r.Recovered)
	}

	p.Successf("synced %s (%s): %d added, %d updated, %d removed, %d delivered in %s",
		r.Account, kind, r.Added, r.Updated, r.Removed, r.Resolved, r.Duration.Round(time.Millisecond))

	if !r.Complete && !r.Full {
		p.Infof("feed not fully read; the next pass continues where this one stopped")
	}
	if r.Failed > 0 {
		p.Warnf("%d mutation(s) failed and stay queued; see 'gltodo pending'", r.Failed)
	}
	for _, ex := range r.Exhausted {
		p.Warnf("%v", ex)
	}
}

func (cmd *SyncCmd) runLog(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	entries, err := cmd.flags.Engine.History(ctx, account)
	if err != nil {
		return fmt.Errorf("read sync history: %w", err)
	}

	shown := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if cmd.failed && !e.Failed() {
			continue
		}
		shown = append(shown, e)
		if cmd.limit > 0 && len(shown) == cmd.limit {
			break
		}
	}

	if cmd.json {
		for _, e := range shown {
			if err := iojson.WriteLine(c.Root().Writer, e); err != nil {
				return err
			}
		}
		return nil
	}

	p := printer.Ctx(ctx)
	if len(shown) == 0 {
		p.Infof("no sync passes recorded for %s", account.Name)
		return nil
	}

	rows := make([][]string, 0, len(shown))
	for _, e := range shown {
		kind := "incr"
		if e.Full {
			kind = "full"
		}
		result := fmt.Sprintf("+%d ~%d -%d", e.Added, e.Updated, e.Removed)
		if e.Failed() {
			result = "error: " + e.Error
		}
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			kind,
			e.Duration.Round(time.Millisecond).String(),
			fmt.Sprintf("%d", e.Pages),
			result,
		})
	}

	p.Table([]printer.Column{
		{Title: "STARTED"},
		{Title: "KIND"},
		{Title: "TOOK"},
		{Title: "PAGES"},
		{Title: "RESULT", Width: 60},
	}, rows)
	return nil
}
