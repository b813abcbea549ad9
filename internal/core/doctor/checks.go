package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/gltodo/internal/core/config"
	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/history"
)

// staleAfter is how old the last successful sync may be before it is
// reported.
const staleAfter = 24 * time.Hour

// ConfigCheck validates the loaded configuration.
type ConfigCheck struct {
	cfg        *config.Config
	configPath string
}

// NewConfigCheck creates a new config check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, configPath: configPath}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if err := c.cfg.ValidateDeep(c.configPath); err != nil {
		result.add(StatusFail, "config", err.Error())
	} else {
		result.add(StatusPass, "config", c.configPath)
	}

	for _, w := range c.cfg.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " " + w.Item
		}
		result.add(StatusWarn, label, w.Message)
	}

	return result
}

// VerifyFunc checks an account's credential against GitLab and returns the
// username it belongs to.
type VerifyFunc func(ctx context.Context, account credential.Account) (string, error)

// AccountsCheck verifies every configured account can authenticate.
type AccountsCheck struct {
	accounts []credential.Account
	verify   VerifyFunc
}

// NewAccountsCheck creates a new accounts check.
func NewAccountsCheck(accounts []credential.Account, verify VerifyFunc) *AccountsCheck {
	return &AccountsCheck{accounts: accounts, verify: verify}
}

func (c *AccountsCheck) Name() string {
	return "Accounts"
}

func (c *AccountsCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	for _, account := range c.accounts {
		user, err := c.verify(ctx, account)
		switch {
		case err == nil:
			result.add(StatusPass, account.Name, fmt.Sprintf("%s as %s", account.Host(), user))
		case errors.Is(err, credential.ErrUnavailable):
			result.add(StatusFail, account.Name, "no token; run 'gltodo auth login'")
		case errors.Is(err, credential.ErrRejected):
			result.add(StatusFail, account.Name, "token rejected by "+account.Host())
		default:
			result.add(StatusWarn, account.Name, err.Error())
		}
	}

	return result
}

// CacheStatus summarizes an account's local state.
type CacheStatus struct {
	Items        int
	Pending      int
	Failing      int
	LastSyncedAt time.Time
	Sync         history.Health
}

// InspectFunc reads an account's cache and sync history.
type InspectFunc func(ctx context.Context, account credential.Account) (CacheStatus, error)

// CacheCheck reports cache health and sync freshness per account.
type CacheCheck struct {
	accounts []credential.Account
	inspect  InspectFunc
	now      func() time.Time
}

// NewCacheCheck creates a new cache check.
func NewCacheCheck(accounts []credential.Account, inspect InspectFunc) *CacheCheck {
	return &CacheCheck{accounts: accounts, inspect: inspect, now: time.Now}
}

func (c *CacheCheck) Name() string {
	return "Cache"
}

func (c *CacheCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	for _, account := range c.accounts {
		st, err := c.inspect(ctx, account)
		if err != nil {
			result.add(StatusFail, account.Name, err.Error())
			continue
		}

		switch {
		case st.LastSyncedAt.IsZero():
			result.add(StatusWarn, account.Name, "never synced; run 'gltodo sync'")
		case c.now().Sub(st.LastSyncedAt) > staleAfter:
			result.add(StatusWarn, account.Name, fmt.Sprintf("%d items, last synced %s", st.Items, st.LastSyncedAt.Local().Format(time.DateTime)))
		default:
			result.add(StatusPass, account.Name, fmt.Sprintf("%d items, %d pending changes", st.Items, st.Pending))
		}

		if st.Failing > 0 {
			result.add(StatusWarn, account.Name+" changes", fmt.Sprintf("%d change(s) failing delivery; see 'gltodo pending'", st.Failing))
		}
		if st.Sync.FailingStreak > 0 && st.Sync.LastFailure != nil {
			last := st.Sync.LastFailure
			detail := fmt.Sprintf("last pass failed at %s: %s", last.StartedAt.Local().Format(time.DateTime), last.Error)
			if st.Sync.FailingStreak > 1 {
				detail = fmt.Sprintf("%d passes failed in a row, %s", st.Sync.FailingStreak, detail)
			}
			result.add(StatusWarn, account.Name+" last sync", detail)
		}
	}

	return result
}
