package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoJSONRetriesOnTransientStatus(t *testing.T) {
	t.Parallel()

	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("temporary"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(WithRetry(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}))

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.DoJSON(req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected ok=true")
	}
	if attempt != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempt)
	}
}

func TestDoJSONReturnsAPIErrorWithLimitedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("a", 128)))
	}))
	defer srv.Close()

	client := New(WithErrorBodyLimit(16))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	err = client.DoJSON(req, &struct{}{})
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status code: %d", apiErr.StatusCode)
	}
	if len(apiErr.Body) != 16 {
		t.Fatalf("expected limited body length 16, got %d", len(apiErr.Body))
	}
}

func TestNonIdempotentRequestsAreNotRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ctx      func() context.Context
		attempts int32
	}{
		{name: "plain post", ctx: context.Background, attempts: 1},
		{name: "post marked idempotent", ctx: func() context.Context { return Idempotent(context.Background()) }, attempts: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer srv.Close()

			client := New(WithRetry(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}))
			req, err := http.NewRequestWithContext(tc.ctx(), http.MethodPost, srv.URL, bytes.NewReader([]byte(`{"body":"hi"}`)))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}

			if err := client.DoJSON(req, nil); err == nil {
				t.Fatalf("expected error")
			}
			if got := attempts.Load(); got != tc.attempts {
				t.Fatalf("expected %d attempts, got %d", tc.attempts, got)
			}
		})
	}
}

func TestRetryReplaysBody(t *testing.T) {
	t.Parallel()

	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		bodies = append(bodies, buf.String())
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(WithRetry(RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}))
	req, err := http.NewRequest(http.MethodPut, srv.URL, strings.NewReader(`{"accountId":"acc-1"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := client.DoJSON(req, nil); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"accountId":"acc-1"}` {
		t.Fatalf("unexpected bodies: %q", bodies)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}.normalized()

	tests := []struct {
		attempt    int
		retryAfter time.Duration
		want       time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 300 * time.Millisecond},
		{attempt: 40, want: 300 * time.Millisecond},
		{attempt: 1, retryAfter: 5 * time.Second, want: 5 * time.Second},
	}
	for _, tc := range tests {
		if got := cfg.backoff(tc.attempt, tc.retryAfter); got != tc.want {
			t.Fatalf("backoff(%d, %s) = %s, want %s", tc.attempt, tc.retryAfter, got, tc.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Fatalf("seconds: got %s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("empty: got %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("garbage: got %s", got)
	}
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Fatalf("past date: got %s", got)
	}
}

func TestDoAppliesBaseHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Test"); got != "abc" {
			t.Fatalf("expected X-Test header abc, got %q", got)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	headers := http.Header{"X-Test": []string{"abc"}}
	client := New(WithBaseHeaders(headers))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	_ = resp.Body.Close()
}

func TestWithoutRetryMakesSingleAttempt(t *testing.T) {
	t.Parallel()

	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(WithoutRetry())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	if err := client.DoJSON(req, &struct{}{}); err == nil {
		t.Fatalf("expected error")
	}
	if attempt != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempt)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		unauthorized bool
		forbidden    bool
		notFound     bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, unauthorized: true},
		{name: "forbidden", status: http.StatusForbidden, forbidden: true},
		{name: "not found", status: http.StatusNotFound, notFound: true},
		{name: "bad request", status: http.StatusBadRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := New(WithoutRetry())
			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}

			err = client.DoJSON(req, nil)
			if got := errors.Is(err, ErrUnauthorized); got != tc.unauthorized {
				t.Fatalf("errors.Is(ErrUnauthorized)=%v, want %v (err=%v)", got, tc.unauthorized, err)
			}
			if got := errors.Is(err, ErrForbidden); got != tc.forbidden {
				t.Fatalf("errors.Is(ErrForbidden)=%v, want %v (err=%v)", got, tc.forbidden, err)
			}
			if got := errors.Is(err, ErrNotFound); got != tc.notFound {
				t.Fatalf("errors.Is(ErrNotFound)=%v, want %v (err=%v)", got, tc.notFound, err)
			}
		})
	}
}

func TestAPIErrorMessageFromJiraBody(t *testing.T) {
	t.Parallel()

	apiErr := &APIError{
		StatusCode: http.StatusBadRequest,
		Body:       `{"errorMessages":["Issue does not exist"],"errors":{"summary":"required","assignee":"invalid"}}`,
	}

	want := "Issue does not exist; assignee: invalid; summary: required"
	if got := apiErr.Message(); got != want {
		t.Fatalf("unexpected message: %q", got)
	}
	if !strings.Contains(apiErr.Error(), want) {
		t.Fatalf("error string should contain message, got %q", apiErr.Error())
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	if got := BasicAuth("agent@example.com", "tok"); got != "Basic YWdlbnRAZXhhbXBsZS5jb206dG9r" {
		t.Fatalf("unexpected header: %q", got)
	}
}
