package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/commands"
	"github.com/hay-kot/gltodo/internal/core/config"
	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/logging"
	"github.com/hay-kot/gltodo/internal/engine"
	"github.com/hay-kot/gltodo/internal/gitlab"
	"github.com/hay-kot/gltodo/internal/printer"
	"github.com/hay-kot/gltodo/internal/store/envtoken"
	"github.com/hay-kot/gltodo/internal/store/keyring"
	"github.com/hay-kot/gltodo/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var logCloser func()

	flags := &commands.Flags{}

	app := commands.NewApp(flags)
	app.Version = build()
	app.Before = func(ctx context.Context, c *cli.Command) (context.Context, error) {
		// Always log to a file; use explicit path or default to <datadir>/gltodo.log
		logFile := flags.LogFile
		if logFile == "" {
			logFile = filepath.Join(flags.DataDir, "gltodo.log")
		}

		logger, closer, err := logutils.New(flags.LogLevel, logFile)
		if err != nil {
			return ctx, fmt.Errorf("setup logger: %w", err)
		}
		logging.Install(logger)
		logCloser = closer

		cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
		if err != nil {
			return ctx, fmt.Errorf("load config: %w", err)
		}
		flags.Config = cfg

		creds := envtoken.New(keyring.New(keyring.DefaultService), envtoken.DefaultVar)
		flags.TokenOverridden = creds.Overridden

		clientLog := logging.Component("gitlab")
		flags.Engine = engine.New(engine.Options{
			DataDir:     cfg.DataDir,
			Credentials: creds,
			NewClient: func(account credential.Account, token string) (engine.Remote, error) {
				return gitlab.New(gitlab.Options{
					BaseURL: account.BaseURL,
					Token:   token,
					Timeout: cfg.HTTP.Timeout,
					Retry: gitlab.RetryPolicy{
						MaxAttempts: cfg.Retry.MaxAttempts,
						BaseDelay:   cfg.Retry.BaseDelay,
						MaxDelay:    cfg.Retry.MaxDelay,
					},
					MaxRateLimitWait: cfg.RateLimit.MaxWait,
					UserAgent:        "gltodo/" + version,
					Logger:           clientLog,
				})
			},
			PageBudget:          cfg.Sync.PageBudget,
			FullPageBudget:      cfg.Sync.FullPageBudget,
			PerPage:             cfg.Sync.PerPage,
			FullInterval:        cfg.Sync.FullInterval,
			MaxMutationAttempts: cfg.Mutations.MaxAttempts,
			Logger:              logging.Component("engine"),
		})

		return printer.NewContext(ctx, printer.New(c.Root().Writer)), nil
	}
	app.After = func(ctx context.Context, c *cli.Command) error {
		if logCloser != nil {
			logCloser()
		}
		return nil
	}

	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		if msg := runErr.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
	}

	os.Exit(commands.ExitCode(runErr))
}
