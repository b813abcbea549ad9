package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/printer"
	"github.com/hay-kot/gltodo/pkg/iojson"
)

type PendingCmd struct {
	flags *Flags

	drop string
	json bool
}

// NewPendingCmd creates a new pending command.
func NewPendingCmd(flags *Flags) *PendingCmd {
	return &PendingCmd{flags: flags}
}

// Register adds the pending command to the application.
func (cmd *PendingCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "pending",
		Usage:     "Show changes not yet confirmed by GitLab",
		UsageText: "gltodo pending [--drop <mutation-id>] [--json]",
		Description: `Lists queued changes with their delivery attempts and last error.
--drop abandons a change and reverts its local effect.

Examples:
  gltodo pending
  gltodo pending --drop 6f1c2d0e-8f7a-4c1e-9a55-1b2f3c4d5e6f`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "drop",
				Usage:       "abandon the queued change with this id",
				Destination: &cmd.drop,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print changes as JSON",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *PendingCmd) run(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)

	if cmd.drop != "" {
		if err := cmd.flags.Engine.DropMutation(ctx, account, cmd.drop); err != nil {
			return err
		}
		p.Successf("dropped %s", cmd.drop)
		return nil
	}

	pending, err := cmd.flags.Engine.Pending(ctx, account)
	if err != nil {
		return err
	}

	if cmd.json {
		return iojson.Write(c.Root().Writer, pending)
	}

	if len(pending) == 0 {
		p.Infof("no pending changes")
		return nil
	}

	rows := make([][]string, 0, len(pending))
	for _, m := range pending {
		rows = append(rows, []string{
			m.ID,
			m.ItemID,
			string(m.Kind),
			m.IssuedAt.Local().Format(time.DateTime),
			strconv.Itoa(m.Attempts),
			m.LastError,
		})
	}

	p.Table([]printer.Column{
		{Title: "ID"},
		{Title: "ITEM"},
		{Title: "KIND"},
		{Title: "ISSUED"},
		{Title: "ATTEMPTS"},
		{Title: "LAST ERROR", Width: 50},
	}, rows)
	return nil
}
