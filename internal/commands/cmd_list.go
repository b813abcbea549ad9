package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/printer"
	"github.com/hay-kot/gltodo/internal/store/jsonfile"
	"github.com/hay-kot/gltodo/pkg/iojson"
)

type ListCmd struct {
	flags *Flags

	projects []string
	authors  []string
	actions  []string
	states   []string
	since    string
	until    string
	snoozed  bool
	sort     string
	limit    int
	json     bool
	follow   bool
}

// NewListCmd creates a new list command.
func NewListCmd(flags *Flags) *ListCmd {
	return &ListCmd{flags: flags}
}

// Register adds the list command to the application.
func (cmd *ListCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List cached to-dos",
		UsageText: "gltodo list [options]",
		Description: `Lists to-dos from the local cache. It never contacts GitLab; run
'gltodo sync' to refresh. By default pending items and items marked done
locally but not yet confirmed are shown, and snoozed items are hidden.

Project filters are glob patterns matched against the project path.
--since and --until take a duration back from now (24h, 7d), a date
(2006-01-02) or an RFC3339 timestamp.

With --follow the list is printed again each time another process, such
as 'gltodo sync --watch', commits a new snapshot.

Examples:
  gltodo list
  gltodo list --project 'platform/**' --action review_requested
  gltodo list --state all --since 7d --sort priority
  gltodo list --json | jq -r '.[].target_url'`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "project",
				Aliases:     []string{"p"},
				Usage:       "project path glob (repeatable)",
				Destination: &cmd.projects,
			},
			&cli.StringSliceFlag{
				Name:        "author",
				Usage:       "author username (repeatable)",
				Destination: &cmd.authors,
			},
			&cli.StringSliceFlag{
				Name:        "action",
				Usage:       "to-do action, e.g. assigned, mentioned, review_requested (repeatable)",
				Destination: &cmd.actions,
			},
			&cli.StringSliceFlag{
				Name:        "state",
				Usage:       "pending, done_unconfirmed, done or all (repeatable)",
				Destination: &cmd.states,
			},
			&cli.StringFlag{
				Name:        "since",
				Usage:       "only items updated at or after this time",
				Destination: &cmd.since,
			},
			&cli.StringFlag{
				Name:        "until",
				Usage:       "only items updated before this time",
				Destination: &cmd.until,
			},
			&cli.BoolFlag{
				Name:        "snoozed",
				Usage:       "include snoozed items",
				Destination: &cmd.snoozed,
			},
			&cli.StringFlag{
				Name:        "sort",
				Usage:       "sort order (updated, priority)",
				Value:       string(todo.SortUpdated),
				Destination: &cmd.sort,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum items to show (0 for all)",
				Destination: &cmd.limit,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print items as JSON",
				Destination: &cmd.json,
			},
			&cli.BoolFlag{
				Name:        "follow",
				Aliases:     []string{"f"},
				Usage:       "print again whenever the cache changes",
				Destination: &cmd.follow,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ListCmd) run(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	filter, err := cmd.filter(time.Now())
	if err != nil {
		return err
	}

	if !cmd.follow {
		return cmd.render(ctx, c, account, filter)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := jsonfile.NewCacheWatcher(cmd.flags.Engine.Cache(account))
	if err != nil {
		return fmt.Errorf("watch cache: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	events := watcher.Watch(ctx)

	if err := cmd.render(ctx, c, account, filter); err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !cmd.json {
				p.Printf("")
				p.Section(fmt.Sprintf("cache updated %s", ev.Timestamp.Local().Format(time.TimeOnly)))
			}
			if err := cmd.render(ctx, c, account, filter); err != nil {
				return err
			}
		}
	}
}

func (cmd *ListCmd) render(ctx context.Context, c *cli.Command, account credential.Account, filter todo.Filter) error {
	items, err := cmd.flags.Engine.List(ctx, account, filter)
	if err != nil {
		return err
	}

	if cmd.json {
		if cmd.follow {
			return iojson.WriteLine(c.Root().Writer, items)
		}
		return iojson.Write(c.Root().Writer, items)
	}

	p := printer.Ctx(ctx)
	if len(items) == 0 {
		p.Infof("nothing to do")
		return nil
	}

	printItems(p, items, time.Now())
	return nil
}

// filter builds a todo.Filter from the command flags.
func (cmd *ListCmd) filter(now time.Time) (todo.Filter, error) {
	f := todo.Filter{
		Authors:        cmd.authors,
		IncludeSnoozed: cmd.snoozed,
		Limit:          cmd.limit,
	}

	for _, pattern := range cmd.projects {
		if !todo.ValidateProjectPattern(pattern) {
			return f, fmt.Errorf("invalid project pattern %q", pattern)
		}
		f.Projects = append(f.Projects, pattern)
	}

	for _, raw := range cmd.actions {
		action := todo.ParseAction(raw)
		if !action.Known() {
			return f, fmt.Errorf("unknown action %q", raw)
		}
		f.Actions = append(f.Actions, action)
	}

	states, err := parseStates(cmd.states)
	if err != nil {
		return f, err
	}
	f.States = states

	switch todo.SortOrder(cmd.sort) {
	case todo.SortUpdated, todo.SortPriority:
		f.Sort = todo.SortOrder(cmd.sort)
	default:
		return f, fmt.Errorf("invalid sort %q (use updated or priority)", cmd.sort)
	}

	if cmd.since != "" {
		if f.Since, err = parseTime(cmd.since, now); err != nil {
			return f, fmt.Errorf("--since: %w", err)
		}
	}
	if cmd.until != "" {
		if f.Until, err = parseTime(cmd.until, now); err != nil {
			return f, fmt.Errorf("--until: %w", err)
		}
	}

	return f, nil
}

// parseStates defaults to the open states. "all" disables state filtering.
func parseStates(raw []string) ([]todo.State, error) {
	if len(raw) == 0 {
		return []todo.State{todo.StatePending, todo.StateDoneUnconfirmed}, nil
	}

	var states []todo.State
	for _, s := range raw {
		if s == "all" {
			return nil, nil
		}
		state := todo.State(s)
		if !state.IsValid() {
			return nil, fmt.Errorf("invalid state %q", s)
		}
		states = append(states, state)
	}
	return states, nil
}

// parseTime accepts a duration before now (with a d suffix for days), a
// date, or an RFC3339 timestamp.
func parseTime(s string, now time.Time) (time.Time, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a duration, date or RFC3339 time", s)
}

func printItems(p *printer.Printer, items []todo.Item, now time.Time) {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		title := it.TargetTitle
		if title == "" {
			title = it.Body
		}
		rows = append(rows, []string{
			it.ID,
			stateLabel(it.State),
			string(it.Action),
			printer.Truncate(it.Project, 30),
			p.Link(it.TargetURL, printer.Truncate(title, 60)),
			p.Muted(age(now, it.UpdatedAt)),
		})
	}

	p.Table([]printer.Column{
		{Title: "ID"},
		{Title: "STATE"},
		{Title: "ACTION"},
		{Title: "PROJECT"},
		{Title: "TITLE"},
		{Title: "AGE"},
	}, rows)
}

func stateLabel(s todo.State) string {
	switch s {
	case todo.StateDoneUnconfirmed:
		return "done*"
	case todo.StateDone:
		return "done"
	default:
		return "open"
	}
}

// age formats the time since t in the largest whole unit.
func age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
