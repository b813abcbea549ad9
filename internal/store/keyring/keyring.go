// Package keyring stores GitLab credentials in the operating system's secret
// store: the macOS Keychain (Security framework), the Secret Service on
// Linux, or the Windows Credential Manager.
package keyring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/hay-kot/gltodo/internal/core/credential"
)

// DefaultService is the keychain service all gltodo secrets are filed under.
const DefaultService = "gltodo"

// secret is the JSON payload stored as the keychain password.
type secret struct {
	Token    string `json:"token"`
	Username string `json:"username,omitempty"`
}

// Store implements credential.Store on top of go-keyring.
type Store struct {
	service string
}

var _ credential.Store = (*Store)(nil)

// New creates a keyring-backed store. An empty service uses DefaultService.
func New(service string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service}
}

// Get returns the stored credential or credential.ErrUnavailable.
func (s *Store) Get(_ context.Context, account credential.Account) (credential.Credential, error) {
	raw, err := gokeyring.Get(s.service, account.Key())
	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return credential.Credential{}, credential.ErrUnavailable
		}
		return credential.Credential{}, fmt.Errorf("read keychain: %w", err)
	}

	var sec secret
	if err := json.Unmarshal([]byte(raw), &sec); err != nil || sec.Token == "" {
		// Entries written by hand may hold a bare token.
		sec = secret{Token: raw}
	}

	return credential.Credential{
		Account:  account,
		Token:    sec.Token,
		Username: sec.Username,
	}, nil
}

// Store writes the credential, replacing any previous entry.
func (s *Store) Store(_ context.Context, cred credential.Credential) error {
	if cred.Token == "" {
		return fmt.Errorf("store credential: empty token")
	}

	data, err := json.Marshal(secret{Token: cred.Token, Username: cred.Username})
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	if err := gokeyring.Set(s.service, cred.Account.Key(), string(data)); err != nil {
		return fmt.Errorf("write keychain: %w", err)
	}
	return nil
}

// Clear deletes the account's entry. A missing entry is not an error.
func (s *Store) Clear(_ context.Context, account credential.Account) error {
	if err := gokeyring.Delete(s.service, account.Key()); err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("delete keychain entry: %w", err)
	}
	return nil
}
