package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	initcmd "github.com/hay-kot/gltodo/internal/commands/init"
	"github.com/hay-kot/gltodo/internal/printer"
)

type InitCmd struct {
	flags *Flags

	yes   bool
	force bool
	name  string
	url   string
}

// NewInitCmd creates a new init command.
func NewInitCmd(flags *Flags) *InitCmd {
	return &InitCmd{flags: flags}
}

// Register adds the init command to the application.
func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Write a starter config file",
		UsageText: "gltodo init [--yes] [--force] [--name NAME] [--url URL]",
		Description: `Creates the config file with a single account. Run interactively to be
prompted for the account name and GitLab URL, or pass --yes to accept
the flags as given.

An existing config is only replaced with --force (or after confirming
the prompt) and is first copied to <config>.bak.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip prompts",
				Destination: &cmd.yes,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing config file",
				Destination: &cmd.force,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "account name",
				Destination: &cmd.name,
			},
			&cli.StringFlag{
				Name:        "url",
				Usage:       "GitLab base URL",
				Destination: &cmd.url,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *InitCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.flags.ConfigPath == "" {
		return fmt.Errorf("no config path; pass --config")
	}

	wizard := initcmd.NewWizard(initcmd.WizardOptions{
		ConfigPath:  cmd.flags.ConfigPath,
		Yes:         cmd.yes,
		Force:       cmd.force,
		AccountName: cmd.name,
		BaseURL:     cmd.url,
	})

	name, err := wizard.Run(ctx)
	if err != nil {
		return err
	}
	if name == "" {
		return nil
	}

	p := printer.Ctx(ctx)
	p.Infof("Next: gltodo --account %s auth login", name)
	return nil
}
