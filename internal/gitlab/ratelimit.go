package gitlab

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	headerRemaining  = "RateLimit-Remaining"
	headerReset      = "RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// rateLimiter tracks the budget GitLab advertises in response headers and
// gates requests once it is spent.
type rateLimiter struct {
	mu        sync.Mutex
	remaining int // -1 when unknown
	reset     time.Time
	maxWait   time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newRateLimiter(maxWait time.Duration) *rateLimiter {
	return &rateLimiter{
		remaining: -1,
		maxWait:   maxWait,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// wait blocks until a request may be sent. It returns a *RateLimitError
// instead of blocking when the reset is further away than maxWait.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	if r.remaining != 0 {
		r.mu.Unlock()
		return nil
	}

	d := r.reset.Sub(r.now())
	if d <= 0 {
		r.remaining = -1
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if d > r.maxWait {
		return &RateLimitError{RetryAfter: d}
	}

	if err := r.sleep(ctx, d); err != nil {
		return err
	}

	r.mu.Lock()
	r.remaining = -1
	r.mu.Unlock()
	return nil
}

// observe records the budget headers of a response.
func (r *rateLimiter) observe(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v := h.Get(headerRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.remaining = n
		}
	}

	if v := h.Get(headerReset); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.reset = time.Unix(sec, 0)
		}
	}
}

// exhaust marks the budget as spent until now+d, used for 429 responses.
func (r *rateLimiter) exhaust(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = 0
	if until := r.now().Add(d); until.After(r.reset) {
		r.reset = until
	}
}

// Remaining returns the last advertised budget, or -1 if unknown.
func (r *rateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// retryAfter parses a Retry-After header given either in seconds or as an
// HTTP date. It returns zero when absent or unparseable.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get(headerRetryAfter)
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
		return time.Duration(sec) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
