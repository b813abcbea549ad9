package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/printer"
)

type AuthCmd struct {
	flags *Flags

	tokenStdin bool

	// stdinIsTerminal and prompt are replaced in tests.
	stdinIsTerminal func() bool
	prompt          func(account credential.Account) (string, error)
}

// NewAuthCmd creates a new auth command.
func NewAuthCmd(flags *Flags) *AuthCmd {
	return &AuthCmd{
		flags:           flags,
		stdinIsTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		prompt:          promptToken,
	}
}

// Register adds the auth command to the application.
func (cmd *AuthCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "auth",
		Usage: "Manage GitLab credentials",
		Description: `Stores a personal access token (scope read_api, plus api to mark to-dos
done) in the system keychain. A GITLAB_TOKEN environment variable takes
precedence over the stored token and is never written anywhere.`,
		Commands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Verify and store a personal access token",
				UsageText: "gltodo auth login [--token-stdin]",
				Description: `Prompts for a token when run in a terminal, or reads it from stdin
with --token-stdin. The token is checked against GitLab before it is
stored.

Examples:
  gltodo auth login
  gltodo --account work auth login
  op read op://vault/gitlab/token | gltodo auth login --token-stdin`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "token-stdin",
						Usage:       "read the token from stdin",
						Destination: &cmd.tokenStdin,
					},
				},
				Action: cmd.runLogin,
			},
			{
				Name:      "logout",
				Usage:     "Remove the stored token",
				UsageText: "gltodo auth logout",
				Action:    cmd.runLogout,
			},
			{
				Name:      "status",
				Usage:     "Show which token is in use",
				UsageText: "gltodo auth status",
				Action:    cmd.runStatus,
			},
		},
	})

	return app
}

func (cmd *AuthCmd) runLogin(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	var token string
	switch {
	case cmd.tokenStdin:
		token, err = readToken(c.Root().Reader)
	case cmd.stdinIsTerminal():
		token, err = cmd.prompt(account)
	default:
		return fmt.Errorf("stdin is not a terminal; pass --token-stdin to read the token from it")
	}
	if err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty token")
	}

	p := printer.Ctx(ctx)

	cred, err := cmd.flags.Engine.Login(ctx, account, token)
	if err != nil {
		if errors.Is(err, credential.ErrRejected) {
			p.Errorf("GitLab at %s rejected the token", account.Host())
		}
		return err
	}

	p.Successf("logged in to %s as %s", account.Host(), cred.Username)
	if cmd.tokenOverridden() {
		p.Warnf("GITLAB_TOKEN is set and takes precedence over the stored token")
	}
	return nil
}

func (cmd *AuthCmd) runLogout(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	if err := cmd.flags.Engine.Logout(ctx, account); err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	p.Successf("removed stored token for %s", account.Key())
	if cmd.tokenOverridden() {
		p.Warnf("GITLAB_TOKEN is still set; unset it to stop using it")
	}
	return nil
}

func (cmd *AuthCmd) runStatus(ctx context.Context, c *cli.Command) error {
	account, err := cmd.flags.account()
	if err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	p.Section(account.Name)
	p.KV("host", account.BaseURL)

	cred, err := cmd.flags.Engine.Status(ctx, account)
	if errors.Is(err, credential.ErrUnavailable) {
		p.KV("token", "none")
		p.Printf("")
		p.Warnf("not logged in; run 'gltodo auth login'")
		return cli.Exit("", ExitAuth)
	}
	if err != nil {
		return err
	}

	source := "keychain"
	if cmd.tokenOverridden() {
		source = "GITLAB_TOKEN"
	}
	p.KV("token", "set ("+source+")")
	if cred.Username != "" {
		p.KV("user", cred.Username)
	}
	return nil
}

func (cmd *AuthCmd) tokenOverridden() bool {
	return cmd.flags.TokenOverridden != nil && cmd.flags.TokenOverridden()
}

// readToken returns the first line of r.
func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptToken(account credential.Account) (string, error) {
	var token string

	err := huh.NewInput().
		Title("GitLab personal access token").
		Description(fmt.Sprintf("Create one at %s/-/user_settings/personal_access_tokens", account.BaseURL)).
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("token is required")
			}
			return nil
		}).
		Value(&token).
		Run()
	if err != nil {
		return "", err
	}

	return token, nil
}
