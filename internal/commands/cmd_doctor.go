package commands

import (
	"context"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/doctor"
	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/printer"
	"github.com/hay-kot/gltodo/pkg/iojson"
)

type DoctorCmd struct {
	flags   *Flags
	format  string
	offline bool
}

// NewDoctorCmd creates a new doctor command.
func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

// Register adds the doctor command to the application.
func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "doctor",
		Usage:     "Run health checks on your gltodo setup",
		UsageText: "gltodo doctor [options]",
		Description: `Checks the configuration, each account's token and each account's
local cache. Exits non-zero when any check fails.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "offline",
				Usage:       "skip checks that contact GitLab",
				Destination: &cmd.offline,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	accounts := make([]credential.Account, 0, len(cfg.Accounts))
	for _, name := range cfg.AccountNames() {
		account, err := cfg.Account(name)
		if err != nil {
			return err
		}
		accounts = append(accounts, account)
	}

	checks := []doctor.Check{doctor.NewConfigCheck(cfg, cmd.flags.ConfigPath)}
	if !cmd.offline {
		checks = append(checks, doctor.NewAccountsCheck(accounts, cmd.verify))
	}
	checks = append(checks, doctor.NewCacheCheck(accounts, cmd.inspect))

	results := doctor.RunAll(ctx, checks)
	passed, warned, failed := doctor.Summary(results)

	if cmd.format == "json" {
		out := struct {
			Healthy bool            `json:"healthy"`
			Summary summaryJSON     `json:"summary"`
			Checks  []doctor.Result `json:"checks"`
		}{
			Healthy: failed == 0,
			Summary: summaryJSON{Passed: passed, Warned: warned, Failed: failed},
			Checks:  results,
		}
		if err := iojson.Write(c.Root().Writer, out); err != nil {
			return err
		}
	} else {
		cmd.outputText(printer.Ctx(ctx), results, passed, warned, failed)
	}

	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

type summaryJSON struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (cmd *DoctorCmd) verify(ctx context.Context, account credential.Account) (string, error) {
	user, err := cmd.flags.Engine.Verify(ctx, account)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func (cmd *DoctorCmd) inspect(ctx context.Context, account credential.Account) (doctor.CacheStatus, error) {
	snap, err := cmd.flags.Engine.Cache(account).Load(ctx)
	if err != nil {
		return doctor.CacheStatus{}, err
	}

	st := doctor.CacheStatus{
		Items:        len(slices.DeleteFunc(slices.Clone(snap.Items), func(it todo.Item) bool { return it.State == todo.StateDone })),
		Pending:      len(snap.PendingMutations),
		LastSyncedAt: snap.Cursor.LastSyncedAt,
	}
	for _, m := range snap.PendingMutations {
		if m.LastError != "" {
			st.Failing++
		}
	}

	// An unreadable history only loses the failure summary.
	if health, err := cmd.flags.Engine.SyncHealth(ctx, account); err == nil {
		st.Sync = health
	}

	return st, nil
}

func (cmd *DoctorCmd) outputText(p *printer.Printer, results []doctor.Result, passed, warned, failed int) {
	for _, result := range results {
		p.Section(result.Name)

		for _, item := range result.Items {
			line := item.Label
			if item.Detail != "" {
				line += " " + p.Muted(item.Detail)
			}

			switch item.Status {
			case doctor.StatusPass:
				p.Successf("%s", line)
			case doctor.StatusWarn:
				p.Warnf("%s", line)
			case doctor.StatusFail:
				p.Errorf("%s", line)
			}
		}

		p.Printf("")
	}

	p.Printf("%d passed  %d warnings  %d failed", passed, warned, failed)
}
