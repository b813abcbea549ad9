package commands

import (
	"github.com/urfave/cli/v3"
)

// NewApp builds the gltodo command tree with its global flags bound to
// flags. Callers add Before/After hooks that populate flags.Config and
// flags.Engine.
func NewApp(flags *Flags) *cli.Command {
	app := &cli.Command{
		Name:      "gltodo",
		Usage:     "Work through your GitLab to-do list from the terminal",
		UsageText: "gltodo [global options] command [command options]",
		Description: `gltodo keeps a local copy of your GitLab to-do list so it can be listed,
filtered and worked through instantly, even offline.

Run 'gltodo auth login' once, then 'gltodo sync' to fetch your to-dos and
'gltodo list' to see them. Marking items done with 'gltodo done' is
recorded locally and sent to GitLab on the next sync.`,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("GLTODO_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/gltodo.log)",
				Sources:     cli.EnvVars("GLTODO_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("GLTODO_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("GLTODO_DATA_DIR"),
				Value:       DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "account",
				Aliases:     []string{"a"},
				Usage:       "account from the config file (defaults to default_account)",
				Sources:     cli.EnvVars("GLTODO_ACCOUNT"),
				Destination: &flags.Account,
			},
		},
	}

	app = NewInitCmd(flags).Register(app)
	app = NewSyncCmd(flags).Register(app)
	app = NewListCmd(flags).Register(app)
	app = NewDoneCmd(flags).Register(app)
	app = NewSnoozeCmd(flags).Register(app)
	app = NewPendingCmd(flags).Register(app)
	app = NewAuthCmd(flags).Register(app)
	app = NewCacheCmd(flags).Register(app)
	app = NewConfigValidateCmd(flags).Register(app)
	app = NewDoctorCmd(flags).Register(app)

	return app
}
