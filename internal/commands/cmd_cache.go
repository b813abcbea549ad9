package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/engine"
	"github.com/hay-kot/gltodo/internal/printer"
)

type CacheCmd struct {
	flags *Flags
}

// NewCacheCmd creates a new cache command.
func NewCacheCmd(flags *Flags) *CacheCmd {
	return &CacheCmd{flags: flags}
}

// Register adds the cache command to the application.
func (cmd *CacheCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "cache",
		Usage: "Local cache maintenance",
		Commands: []*cli.Command{
			{
				Name:      "reset",
				Usage:     "Discard the local cache",
				UsageText: "gltodo cache reset",
				Description: `Deletes the account's cached to-dos, sync cursor, queued changes and
sync history. The next 'gltodo sync' rebuilds everything from GitLab.
Queued changes that were not delivered are lost.`,
				Action: cmd.runReset,
			},
		},
	})

	return app
}

func (cmd *CacheCmd) runReset(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)

	pending, err := cmd.flags.Engine.Pending(ctx, account)
	if err == nil && len(pending) > 0 {
		p.Warnf("discarding %d undelivered change(s)", len(pending))
	}

	if err := cmd.flags.Engine.ResetCache(ctx, account); err != nil {
		if errors.Is(err, engine.ErrSyncInProgress) {
			return fmt.Errorf("cannot reset while a sync is running: %w", err)
		}
		return err
	}

	p.Successf("cache for %s reset", account.Name)
	return nil
}
