package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration
// including account URLs and file accessibility. The configPath argument
// specifies the config file location to validate (empty string skips config
// file check). This calls Validate() first for basic structural validation.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateAccounts(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	for _, name := range c.AccountNames() {
		u, err := url.Parse(c.Accounts[name].BaseURL)
		if err == nil && u.Scheme == "http" {
			warnings = append(warnings, ValidationWarning{
				Category: "Accounts",
				Item:     name,
				Message:  "base_url uses plain http; the token is sent unencrypted",
			})
		}
	}

	if c.DefaultAccount == "" && len(c.Accounts) > 1 {
		warnings = append(warnings, ValidationWarning{
			Category: "Accounts",
			Message:  "no default_account set; every command needs --account",
		})
	}

	if c.Sync.PageBudget*c.Sync.PerPage < 50 {
		warnings = append(warnings, ValidationWarning{
			Category: "Sync",
			Message:  fmt.Sprintf("an incremental pass reads at most %d items", c.Sync.PageBudget*c.Sync.PerPage),
		})
	}

	return warnings
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validateAccounts checks every base_url is an absolute http(s) URL.
func (c *Config) validateAccounts() error {
	var errs criterio.FieldErrorsBuilder
	for _, name := range c.AccountNames() {
		field := fmt.Sprintf("accounts[%q].base_url", name)
		if err := isGitLabURL(c.Accounts[name].BaseURL); err != nil {
			errs = errs.Append(field, err)
		}
	}
	return errs.ToError()
}

// ValidateAccount checks an account name and base URL before they are
// written to a config file.
func ValidateAccount(name, baseURL string) error {
	if !isValidAccountName(name) {
		return fmt.Errorf("account name %q may only contain letters, digits, '-', '_' and '.'", name)
	}
	return isGitLabURL(baseURL)
}

func isGitLabURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("url %q must not have a query or fragment", raw)
	}
	return nil
}
