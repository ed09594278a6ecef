package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultErrorBodyLimit int64 = 4096
	defaultTimeout              = 30 * time.Second
)

// RetryConfig controls retries of transient failures. Only idempotent
// requests are ever retried; see Idempotent.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         time.Duration
}

var defaultRetryConfig = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Jitter:         100 * time.Millisecond,
}

func (cfg RetryConfig) normalized() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultRetryConfig.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultRetryConfig.InitialBackoff
	}
	cfg.MaxBackoff = max(cfg.MaxBackoff, cfg.InitialBackoff)
	cfg.Jitter = max(cfg.Jitter, 0)
	return cfg
}

// backoff returns the wait before attempt+1. A server supplied Retry-After wins.
func (cfg RetryConfig) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	wait := cfg.InitialBackoff << min(attempt-1, 16)
	if cfg.Jitter > 0 {
		wait += rand.N(cfg.Jitter)
	}
	return min(wait, cfg.MaxBackoff)
}

type idempotentKey struct{}

// Idempotent marks a request context as safe to retry even though its
// method is not, e.g. a read-only search sent as POST.
func Idempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

// retryable reports whether req may be sent more than once.
func retryable(req *http.Request) bool {
	if req.Body != nil && req.GetBody == nil {
		return false
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	marked, _ := req.Context().Value(idempotentKey{}).(bool)
	return marked
}

// Client is the HTTP layer shared by the Jira client and the edge proxy.
type Client struct {
	httpClient     *http.Client
	retry          RetryConfig
	log            zerolog.Logger
	baseHeaders    http.Header
	errorBodyLimit int64
}

// Option mutates Client behavior.
type Option func(*Client)

// New creates a transport client. By default idempotent requests are tried
// up to three times and every request times out after 30s.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		retry:          defaultRetryConfig,
		log:            zerolog.Nop(),
		baseHeaders:    http.Header{},
		errorBodyLimit: defaultErrorBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.retry = c.retry.normalized()
	return c
}

// WithTimeout bounds each attempt. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithoutRetry makes every request a single attempt. Failures surface to the
// caller unchanged so the decision to retry stays with the user.
func WithoutRetry() Option {
	return func(c *Client) {
		c.retry = RetryConfig{MaxAttempts: 1}
	}
}

// WithLogger logs each exchange at debug level and final failures at warn.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log.With().Str("component", "transport").Logger()
	}
}

// WithBaseHeaders applies headers to every request unless already present.
func WithBaseHeaders(headers http.Header) Option {
	return func(c *Client) {
		for key, values := range headers {
			for _, value := range values {
				c.baseHeaders.Add(key, value)
			}
		}
	}
}

// WithErrorBodyLimit changes the amount of response body kept in APIError.
func WithErrorBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.errorBodyLimit = limit
		}
	}
}

// Do sends req, retrying transient failures of retryable requests.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("transport: request is nil")
	}

	attempts := 1
	if retryable(req) {
		attempts = c.retry.MaxAttempts
	}

	started := time.Now()
	for attempt := 1; ; attempt++ {
		resp, retryAfter, err := c.send(req, attempt)
		last := attempt >= attempts
		switch {
		case err != nil && (last || !transientError(err)):
			c.log.Warn().Err(err).
				Str("method", req.Method).Str("url", req.URL.Redacted()).
				Int("attempt", attempt).Dur("elapsed", time.Since(started)).
				Msg("request failed")
			return nil, err
		case err == nil && (last || !transientStatus(resp.StatusCode)):
			c.log.Debug().
				Str("method", req.Method).Str("url", req.URL.Redacted()).
				Int("status", resp.StatusCode).Int("attempt", attempt).Dur("elapsed", time.Since(started)).
				Msg("request done")
			return resp, nil
		}

		if resp != nil {
			drainAndClose(resp.Body)
		}
		wait := c.retry.backoff(attempt, retryAfter)
		c.log.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).
			Int("attempt", attempt).Dur("wait", wait).Msg("retrying request")
		if err := sleepWithContext(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

// send performs one attempt on a clone of req.
func (c *Client) send(req *http.Request, attempt int) (*http.Response, time.Duration, error) {
	clone := req.Clone(req.Context())
	if attempt > 1 && req.Body != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, 0, fmt.Errorf("transport: replay body: %w", err)
		}
		clone.Body = body
	}
	for key, values := range c.baseHeaders {
		if clone.Header.Get(key) == "" {
			clone.Header[key] = append([]string(nil), values...)
		}
	}

	resp, err := c.httpClient.Do(clone)
	if err != nil {
		return nil, 0, err
	}
	return resp, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// DoJSON sends req and decodes a 2xx JSON body into out. Other statuses
// become *APIError.
func (c *Client) DoJSON(req *http.Request, out any) error {
	if req == nil {
		return errors.New("transport: request is nil")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return NewAPIError(resp, c.errorBodyLimit)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// transientError reports network failures worth another attempt. Expired
// or cancelled contexts are final.
func transientError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(raw + "s"); err == nil && seconds > 0 {
		return seconds
	}
	if at, err := http.ParseTime(raw); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
