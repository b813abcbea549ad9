package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/printer"
)

type SnoozeCmd struct {
	flags *Flags

	duration time.Duration
	until    string
}

// NewSnoozeCmd creates a new snooze command.
func NewSnoozeCmd(flags *Flags) *SnoozeCmd {
	return &SnoozeCmd{flags: flags}
}

// Register adds the snooze command to the application.
func (cmd *SnoozeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "snooze",
		Usage:     "Hide a to-do until later",
		UsageText: "gltodo snooze <id> --for <duration> | --until <time>",
		Description: `Hides a to-do from 'gltodo list' until the given time. Snoozing is
local to this machine; GitLab is not told.

Examples:
  gltodo snooze 1234 --for 2h
  gltodo snooze 1234 --until 2026-05-01T09:00:00+02:00`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "for",
				Usage:       "snooze for this long",
				Destination: &cmd.duration,
			},
			&cli.StringFlag{
				Name:        "until",
				Usage:       "snooze until this RFC3339 time or date",
				Destination: &cmd.until,
			},
		},
		Action:        cmd.run,
		ShellComplete: TodoIDCompleter(cmd.flags),
	})

	return app
}

func (cmd *SnoozeCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one to-do id")
	}
	id := c.Args().First()

	now := time.Now()
	var until time.Time
	switch {
	case cmd.duration > 0 && cmd.until != "":
		return fmt.Errorf("use either --for or --until, not both")
	case cmd.duration > 0:
		until = now.Add(cmd.duration)
	case cmd.until != "":
		t, err := parseDeadline(cmd.until)
		if err != nil {
			return fmt.Errorf("--until: %w", err)
		}
		until = t
	default:
		return fmt.Errorf("one of --for or --until is required")
	}

	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	if err := cmd.flags.Engine.Snooze(ctx, account, id, until); err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("%s snoozed until %s", id, until.Local().Format("Mon Jan 2 15:04"))
	return nil
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as an RFC3339 time or date", s)
}
