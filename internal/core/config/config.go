// Package config handles configuration loading and validation for gltodo.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/gltodo/internal/core/credential"
)

// DefaultBaseURL is the GitLab instance used when none is configured.
const DefaultBaseURL = "https://gitlab.com"

// DefaultAccountName names the implicit account when the config defines none.
const DefaultAccountName = "default"

// MaxPerPage is the largest page size GitLab accepts.
const MaxPerPage = 100

// Config holds the application configuration.
type Config struct {
	Accounts       map[string]AccountConfig `yaml:"accounts"`
	DefaultAccount string                   `yaml:"default_account"`
	Sync           SyncConfig               `yaml:"sync"`
	HTTP           HTTPConfig               `yaml:"http"`
	Retry          RetryConfig              `yaml:"retry"`
	RateLimit      RateLimitConfig          `yaml:"rate_limit"`
	Mutations      MutationsConfig          `yaml:"mutations"`
	DataDir        string                   `yaml:"-"` // set by caller, not from config file
}

// AccountConfig describes one GitLab login.
type AccountConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SyncConfig bounds sync passes.
type SyncConfig struct {
	// PageBudget caps pages fetched by an incremental pass.
	PageBudget int `yaml:"page_budget"`
	// FullPageBudget caps pages fetched by a full pass.
	FullPageBudget int           `yaml:"full_page_budget"`
	PerPage        int           `yaml:"per_page"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
	// FullInterval forces a full pass when the last one is older.
	FullInterval time.Duration `yaml:"full_interval"`
}

// HTTPConfig holds HTTP client settings.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig holds the backoff policy for transient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// RateLimitConfig controls how long a request may wait for the budget to reset.
type RateLimitConfig struct {
	MaxWait time.Duration `yaml:"max_wait"`
}

// MutationsConfig controls delivery of queued mutations.
type MutationsConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Accounts: map[string]AccountConfig{
			DefaultAccountName: {BaseURL: DefaultBaseURL},
		},
		DefaultAccount: DefaultAccountName,
		Sync: SyncConfig{
			PageBudget:     10,
			FullPageBudget: 100,
			PerPage:        20,
			WatchInterval:  30 * time.Second,
			FullInterval:   time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxWait: 10 * time.Second,
		},
		Mutations: MutationsConfig{
			MaxAttempts: 5,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			// A file that defines accounts replaces the implicit default.
			cfg.Accounts = nil
			cfg.DefaultAccount = ""
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if len(c.Accounts) == 0 {
		c.Accounts = defaults.Accounts
	}
	for name, acct := range c.Accounts {
		if acct.BaseURL == "" {
			acct.BaseURL = DefaultBaseURL
		}
		acct.BaseURL = strings.TrimRight(acct.BaseURL, "/")
		c.Accounts[name] = acct
	}
	if c.DefaultAccount == "" && len(c.Accounts) == 1 {
		for name := range c.Accounts {
			c.DefaultAccount = name
		}
	}

	if c.Sync.PageBudget == 0 {
		c.Sync.PageBudget = defaults.Sync.PageBudget
	}
	if c.Sync.FullPageBudget == 0 {
		c.Sync.FullPageBudget = defaults.Sync.FullPageBudget
	}
	if c.Sync.PerPage == 0 {
		c.Sync.PerPage = defaults.Sync.PerPage
	}
	if c.Sync.WatchInterval == 0 {
		c.Sync.WatchInterval = defaults.Sync.WatchInterval
	}
	if c.Sync.FullInterval == 0 {
		c.Sync.FullInterval = defaults.Sync.FullInterval
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = defaults.Retry.MaxDelay
	}
	if c.RateLimit.MaxWait == 0 {
		c.RateLimit.MaxWait = defaults.RateLimit.MaxWait
	}
	if c.Mutations.MaxAttempts == 0 {
		c.Mutations.MaxAttempts = defaults.Mutations.MaxAttempts
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	for _, name := range c.AccountNames() {
		if !isValidAccountName(name) {
			return fmt.Errorf("account %q: name may only contain letters, digits, '-', '_' and '.'", name)
		}
	}

	if c.DefaultAccount != "" {
		if _, ok := c.Accounts[c.DefaultAccount]; !ok {
			return fmt.Errorf("default_account %q is not a configured account", c.DefaultAccount)
		}
	}

	if c.Sync.PageBudget < 1 {
		return fmt.Errorf("sync.page_budget must be at least 1")
	}
	if c.Sync.FullPageBudget < c.Sync.PageBudget {
		return fmt.Errorf("sync.full_page_budget must be at least sync.page_budget")
	}
	if c.Sync.PerPage < 1 || c.Sync.PerPage > MaxPerPage {
		return fmt.Errorf("sync.per_page must be between 1 and %d", MaxPerPage)
	}
	if c.Sync.WatchInterval < time.Second {
		return fmt.Errorf("sync.watch_interval must be at least 1s")
	}
	if c.Sync.FullInterval < 0 {
		return fmt.Errorf("sync.full_interval cannot be negative")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.base_delay must be positive and not exceed retry.max_delay")
	}
	if c.RateLimit.MaxWait < 0 {
		return fmt.Errorf("rate_limit.max_wait cannot be negative")
	}
	if c.Mutations.MaxAttempts < 1 {
		return fmt.Errorf("mutations.max_attempts must be at least 1")
	}

	return nil
}

// AccountNames returns the configured account names, sorted.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Account resolves an account by name. An empty name selects
// default_account.
func (c *Config) Account(name string) (credential.Account, error) {
	if name == "" {
		name = c.DefaultAccount
	}
	if name == "" {
		return credential.Account{}, fmt.Errorf("no account selected; set default_account or pass --account (have: %s)",
			strings.Join(c.AccountNames(), ", "))
	}

	acct, ok := c.Accounts[name]
	if !ok {
		return credential.Account{}, fmt.Errorf("unknown account %q (have: %s)", name, strings.Join(c.AccountNames(), ", "))
	}

	return credential.Account{Name: name, BaseURL: acct.BaseURL}, nil
}

// AccountsDir returns the directory holding per-account state.
func (c *Config) AccountsDir() string {
	return filepath.Join(c.DataDir, "accounts")
}

// LogFile returns the default log file path.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "gltodo.log")
}

func isValidAccountName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
