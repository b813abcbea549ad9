// Package credential defines GitLab accounts, the personal access tokens that
// authenticate them, and the storage interface for those tokens.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrUnavailable is returned when no credential is stored for an account.
	ErrUnavailable = errors.New("no credential stored")
	// ErrRejected is returned when GitLab refuses the token. A stored
	// credential has been cleared and the user must log in again.
	ErrRejected = errors.New("credential rejected by gitlab")
)

// Account identifies one GitLab login. It is passed explicitly to every
// engine call; there is no process-wide current account.
type Account struct {
	Name    string
	BaseURL string
}

// Host returns the host part of BaseURL, or BaseURL itself if it does not parse.
func (a Account) Host() string {
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Host == "" {
		return a.BaseURL
	}
	return u.Host
}

// Key is the storage key for the account's secret, e.g. "work@gitlab.com".
func (a Account) Key() string {
	return a.Name + "@" + a.Host()
}

// Slug is a filesystem-safe form of Key used for per-account directories.
func (a Account) Slug() string {
	r := strings.NewReplacer("/", "_", ":", "_", "@", "_", "\\", "_")
	return r.Replace(a.Key())
}

// Source records where a credential was read from.
type Source string

const (
	// SourceStore is the platform secret storage behind Store.
	SourceStore Source = ""
	// SourceEnv is a token supplied through the environment. Nothing in the
	// process can clear it.
	SourceEnv Source = "env"
)

// Credential is a personal access token for an account.
type Credential struct {
	Account  Account
	Token    string
	Username string
	Source   Source
}

// Clearable reports whether Store.Clear removes this credential.
func (c Credential) Clearable() bool {
	return c.Source == SourceStore
}

// String never includes the token.
func (c Credential) String() string {
	return fmt.Sprintf("credential{account=%s user=%s token=[redacted]}", c.Account.Key(), c.Username)
}

// Store persists credentials in platform secret storage.
type Store interface {
	// Get returns the credential for the account, or ErrUnavailable.
	Get(ctx context.Context, account Account) (Credential, error)
	// Store saves or replaces the account's credential.
	Store(ctx context.Context, cred Credential) error
	// Clear removes the account's credential. Clearing a missing
	// credential is not an error.
	Clear(ctx context.Context, account Account) error
}
