// Package initcmd writes a starter gltodo config file, prompting for the
// account when run interactively.
package initcmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/gltodo/internal/core/config"
	"github.com/hay-kot/gltodo/internal/printer"
)

// WizardOptions configures the wizard behavior.
type WizardOptions struct {
	ConfigPath string
	Yes        bool // skip prompts, use defaults
	Force      bool // overwrite existing config

	// AccountName and BaseURL prefill the prompts.
	AccountName string
	BaseURL     string
}

// Wizard orchestrates the init process.
type Wizard struct {
	opts WizardOptions

	// form is replaced in tests.
	form func(opts *WizardOptions) error
}

// NewWizard creates a new init wizard.
func NewWizard(opts WizardOptions) *Wizard {
	if opts.AccountName == "" {
		opts.AccountName = config.DefaultAccountName
	}
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	return &Wizard{opts: opts, form: runForm}
}

// fileConfig is the subset of config.Config written by init. Everything
// else keeps its default.
type fileConfig struct {
	Accounts       map[string]config.AccountConfig `yaml:"accounts"`
	DefaultAccount string                          `yaml:"default_account"`
}

// Run executes the wizard. It returns the account name written.
func (w *Wizard) Run(ctx context.Context) (string, error) {
	p := printer.Ctx(ctx)

	// Check for existing config
	if ConfigExists(w.opts.ConfigPath) && !w.opts.Force {
		if w.opts.Yes {
			return "", fmt.Errorf("config exists at %s; use --force to overwrite", w.opts.ConfigPath)
		}

		var overwrite bool
		err := huh.NewConfirm().
			Title("Config file already exists").
			Description(w.opts.ConfigPath + "\nOverwrite? (a backup will be created)").
			Value(&overwrite).
			Run()
		if err != nil {
			return "", err
		}
		if !overwrite {
			p.Infof("Init cancelled")
			return "", nil
		}
	}

	if !w.opts.Yes {
		if err := w.form(&w.opts); err != nil {
			return "", err
		}
	}

	name := strings.TrimSpace(w.opts.AccountName)
	baseURL := strings.TrimRight(strings.TrimSpace(w.opts.BaseURL), "/")
	if err := config.ValidateAccount(name, baseURL); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(fileConfig{
		Accounts:       map[string]config.AccountConfig{name: {BaseURL: baseURL}},
		DefaultAccount: name,
	})
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	backup, err := BackupConfig(w.opts.ConfigPath)
	if err != nil {
		return "", err
	}
	if backup != "" {
		p.Infof("Backed up existing config to %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(w.opts.ConfigPath), 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(w.opts.ConfigPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	p.Successf("Wrote %s", w.opts.ConfigPath)
	return name, nil
}

func runForm(opts *WizardOptions) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account name").
				Description("Used with --account when you have more than one GitLab login").
				Validate(func(s string) error {
					return config.ValidateAccount(strings.TrimSpace(s), config.DefaultBaseURL)
				}).
				Value(&opts.AccountName),
			huh.NewInput().
				Title("GitLab URL").
				Description("https://gitlab.com or your self-managed instance").
				Validate(func(s string) error {
					return config.ValidateAccount(config.DefaultAccountName, strings.TrimSpace(s))
				}).
				Value(&opts.BaseURL),
		),
	).Run()
}
