package gitlab

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable means GitLab could not be reached or kept failing after
	// all retries were spent.
	ErrUnavailable = errors.New("gitlab unavailable")
	// ErrRateLimited means the request was not sent because the remote
	// request budget is exhausted. Use errors.As with *RateLimitError to
	// get the wait time.
	ErrRateLimited = errors.New("gitlab rate limit exhausted")
	// ErrUnauthorized means GitLab rejected the token (HTTP 401).
	ErrUnauthorized = errors.New("gitlab rejected token")
	// ErrMalformed means a response body could not be decoded.
	ErrMalformed = errors.New("malformed gitlab response")
)

// RateLimitError carries how long until the budget resets.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// StatusError is a non-retryable HTTP failure that has no sentinel of its own.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsTransient reports whether err is worth retrying later: the remote was
// unreachable or rate limited.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
