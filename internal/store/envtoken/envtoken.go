// Package envtoken lets a GITLAB_TOKEN environment variable override the
// stored credential without ever writing it anywhere.
package envtoken

import (
	"context"
	"os"

	"github.com/hay-kot/gltodo/internal/core/credential"
)

// DefaultVar is the environment variable consulted by New.
const DefaultVar = "GITLAB_TOKEN"

// Store serves Get from the environment when the variable is set and
// delegates everything else to the wrapped store.
type Store struct {
	next   credential.Store
	lookup func() (string, bool)
}

var _ credential.Store = (*Store)(nil)

// New wraps next with an override read from envVar (DefaultVar if empty).
func New(next credential.Store, envVar string) *Store {
	if envVar == "" {
		envVar = DefaultVar
	}
	return &Store{
		next:   next,
		lookup: func() (string, bool) { return os.LookupEnv(envVar) },
	}
}

// Get returns the environment token if present, otherwise the stored one.
func (s *Store) Get(ctx context.Context, account credential.Account) (credential.Credential, error) {
	if token, ok := s.lookup(); ok && token != "" {
		return credential.Credential{Account: account, Token: token, Source: credential.SourceEnv}, nil
	}
	return s.next.Get(ctx, account)
}

// Store delegates to the wrapped store.
func (s *Store) Store(ctx context.Context, cred credential.Credential) error {
	return s.next.Store(ctx, cred)
}

// Clear delegates to the wrapped store. It never touches the environment
// token; callers check Credential.Clearable before clearing a rejected one.
func (s *Store) Clear(ctx context.Context, account credential.Account) error {
	return s.next.Clear(ctx, account)
}

// Overridden reports whether the environment currently supplies a token.
func (s *Store) Overridden() bool {
	token, ok := s.lookup()
	return ok && token != ""
}
