// Package gitlab is a small client for the GitLab REST endpoints gltodo
// needs: the to-do feed, mark-as-done, and the current user.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is used when Options.BaseURL is empty.
const DefaultBaseURL = "https://gitlab.com"

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string

	// Timeout bounds each individual HTTP request (default 30s).
	Timeout time.Duration
	Retry   RetryPolicy
	// MaxRateLimitWait is the longest the client blocks for an exhausted
	// rate limit before failing with *RateLimitError (default 10s).
	MaxRateLimitWait time.Duration

	HTTPClient *http.Client
	UserAgent  string
	Logger     zerolog.Logger
}

// Client talks to one GitLab instance with one token.
type Client struct {
	baseURL   *url.URL
	token     string
	timeout   time.Duration
	retry     RetryPolicy
	http      *http.Client
	userAgent string
	limiter   *rateLimiter
	log       zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(ceiling time.Duration) time.Duration
}

// New creates a Client. It fails only on an unparseable base URL.
func New(opts Options) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse base url: %q must include scheme and host", base)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.MaxRateLimitWait <= 0 {
		opts.MaxRateLimitWait = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gltodo"
	}

	return &Client{
		baseURL:   u,
		token:     opts.Token,
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		http:      opts.HTTPClient,
		userAgent: opts.UserAgent,
		limiter:   newRateLimiter(opts.MaxRateLimitWait),
		log:       opts.Logger,
		sleep:     sleepCtx,
		jitter:    fullJitter,
	}, nil
}

// RateLimitRemaining returns the last budget GitLab advertised, or -1.
func (c *Client) RateLimitRemaining() int {
	return c.limiter.Remaining()
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one logical request, retrying transient failures per the retry
// policy. Successful bodies are decoded into out when out is non-nil.
// Non-retryable statuses other than 401 come back as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) (http.Header, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := c.limiter.wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, method, path, query)
		waitForLimiter := false

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case resp.status == http.StatusUnauthorized:
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
		case resp.status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%s %s: status %d", method, path, resp.status)
			if ra := retryAfter(resp.header, time.Now()); ra > 0 {
				c.limiter.exhaust(ra)
				waitForLimiter = true
			}
		case resp.status >= 500:
			lastErr = fmt.Errorf("%s %s: status %d", method, path, resp.status)
		case resp.status >= 200 && resp.status < 300:
			if out != nil && len(resp.body) > 0 {
				if err := json.Unmarshal(resp.body, out); err != nil {
					return nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformed, err)
				}
			}
			return resp.header, nil
		default:
			return resp.header, &StatusError{
				Method:     method,
				Path:       path,
				StatusCode: resp.status,
				Message:    apiMessage(resp.body),
			}
		}

		c.log.Debug().
			Err(lastErr).
			Str("method", method).
			Str("path", path).
			Int("attempt", attempt).
			Msg("gitlab request failed")

		if attempt >= c.retry.MaxAttempts {
			return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrUnavailable, lastErr, attempt)
		}

		if waitForLimiter {
			// The limiter gate at the top of the loop honors Retry-After.
			continue
		}

		if err := c.sleep(ctx, c.jitter(c.retry.ceiling(attempt))); err != nil {
			return nil, err
		}
	}
}

// send performs a single HTTP round trip bounded by the per-request timeout.
func (c *Client) send(ctx context.Context, method, path string, query url.Values) (response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = u.Path + "/api/v4" + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Debug().Err(err).Msg("gitlab: close response body")
		}
	}()

	c.limiter.observe(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("ratelimit_remaining", resp.Header.Get(headerRemaining)).
		Msg("gitlab response")

	return response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// apiMessage extracts GitLab's {"message": ...} or {"error": ...} text.
func apiMessage(body []byte) string {
	var payload struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	switch m := payload.Message.(type) {
	case string:
		return m
	case nil:
		return ""
	default:
		b, _ := json.Marshal(m)
		return string(b)
	}
}

// IsNotFound reports whether err is an HTTP 404 from GitLab.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
