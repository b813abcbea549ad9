package logging

import "context"

// scope is the account and sync pass a piece of work belongs to.
type scope struct {
	account string
	passID  string
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithAccount scopes ctx to an account key such as "work@gitlab.com".
// Moving to a different account drops the pass ID inherited from the
// previous one.
func WithAccount(ctx context.Context, account string) context.Context {
	s := scopeFrom(ctx)
	if s.account != account {
		s.passID = ""
	}
	s.account = account
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithPassID scopes ctx to a sync pass within the current account.
func WithPassID(ctx context.Context, passID string) context.Context {
	s := scopeFrom(ctx)
	s.passID = passID
	return context.WithValue(ctx, scopeKey{}, s)
}

// GetAccount returns the account key, or "".
func GetAccount(ctx context.Context) string {
	return scopeFrom(ctx).account
}

// GetPassID returns the sync pass ID, or "".
func GetPassID(ctx context.Context) string {
	return scopeFrom(ctx).passID
}
