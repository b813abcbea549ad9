package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/printer"
	"github.com/hay-kot/gltodo/pkg/iojson"
)

type DoneCmd struct {
	flags *Flags
	input iojson.FileReader[todo.Item]
}

// NewDoneCmd creates a new done command.
func NewDoneCmd(flags *Flags) *DoneCmd {
	return &DoneCmd{flags: flags}
}

// Register adds the done command to the application.
func (cmd *DoneCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "done",
		Usage:     "Mark to-dos as done",
		UsageText: "gltodo done <id>... | gltodo done -f <file|->",
		Description: `Marks to-dos done in the local cache immediately and queues the change
for GitLab. The next 'gltodo sync' delivers it; until then the item shows
as done* in 'gltodo list'. Works offline.

Items can also be read as JSON, for example from 'gltodo list --json'.

Examples:
  gltodo done 1234 1235
  gltodo list --project 'bots/**' --json | gltodo done -f -`,
		Flags: []cli.Flag{
			cmd.input.Flag(),
		},
		Action:        cmd.run,
		ShellComplete: TodoIDCompleter(cmd.flags),
	})

	return app
}

func (cmd *DoneCmd) run(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	ids := c.Args().Slice()
	if cmd.input.IsSet() {
		cmd.input.SetInput(c.Root().Reader)
		items, err := cmd.input.ReadAll()
		if err != nil {
			return err
		}
		for _, it := range items {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no to-do ids given")
	}

	p := printer.Ctx(ctx)

	var errs []error
	queued := 0
	for _, id := range ids {
		ok, err := cmd.flags.Engine.MarkDone(ctx, account, id)
		switch {
		case errors.Is(err, todo.ErrNotFound):
			p.Errorf("%s: not in the local cache", id)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		case err != nil:
			return err
		case ok:
			queued++
			p.Successf("%s marked done", id)
		default:
			p.Infof("%s already done", id)
		}
	}

	if queued > 0 {
		p.Infof("%d change(s) queued; run 'gltodo sync' to send them to GitLab", queued)
	}
	return errors.Join(errs...)
}
