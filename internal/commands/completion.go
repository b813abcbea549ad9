package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/core/config"
	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/engine"
	"github.com/hay-kot/gltodo/internal/printer"
)

// TodoIDCompleter returns a ShellCompleteFunc that suggests the ids of open
// cached to-dos, with their titles, as positional completions. It reads the
// cache only and never contacts GitLab.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func TodoIDCompleter(flags *Flags) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		// Delegate to default flag completion when typing a flag
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		// Before hooks do not run while completing, so the engine may be unset.
		cfg, eng := flags.Config, flags.Engine
		if cfg == nil || eng == nil {
			loaded, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return
			}
			cfg = loaded
			eng = engine.New(engine.Options{DataDir: cfg.DataDir, Logger: zerolog.Nop()})
		}

		account, err := cfg.Account(flags.Account)
		if err != nil {
			return
		}

		items, err := eng.List(ctx, account, todo.Filter{States: []todo.State{todo.StatePending}})
		if err != nil {
			return
		}

		w := cmd.Root().Writer
		for _, it := range items {
			_, _ = fmt.Fprintf(w, "%s:%s\n", it.ID, printer.Truncate(it.TargetTitle, 60))
		}
	}
}
