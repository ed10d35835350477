package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/marketfeed/internal/auth"
	"github.com/rickgao/marketfeed/internal/retry"
	"github.com/rickgao/marketfeed/internal/source"
)

// fastPolicy retries quickly so tests stay fast.
func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}
}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("finnhub", "https://api.example.com")

		if c.name != "finnhub" {
			t.Errorf("name = %q, want %q", c.name, "finnhub")
		}
		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.policy != retry.DefaultPolicy() {
			t.Errorf("policy = %+v, want default", c.policy)
		}
		if c.limiter != nil {
			t.Error("limiter should be nil by default")
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{}
		c := NewClient("polygon", "https://api.example.com",
			WithHTTPClient(hc),
			WithTimeout(5*time.Second),
			WithRetryPolicy(fastPolicy(5)),
			WithRateLimit(2, 0),
			WithLogger(logger),
			WithUserAgent("test-agent"),
		)
		if c.httpClient != hc || hc.Timeout != 5*time.Second {
			t.Errorf("HTTP client not configured: %+v", c.httpClient)
		}
		if c.policy.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %d, want 5", c.policy.MaxAttempts)
		}
		if c.limiter == nil || c.limiter.Burst() != 1 {
			t.Error("rate limiter not configured with burst 1")
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.userAgent != "test-agent" {
			t.Errorf("userAgent = %q", c.userAgent)
		}
	})

	t.Run("zero rate disables limiter", func(t *testing.T) {
		c := NewClient("rss", "https://api.example.com", WithRateLimit(0, 5))
		if c.limiter != nil {
			t.Error("limiter should be nil for rps 0")
		}
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &APIError{Source: "x", StatusCode: tt.status}
		if err.Retryable() != tt.retryable {
			t.Errorf("Retryable(%d) = %v, want %v", tt.status, err.Retryable(), tt.retryable)
		}
	}

	err := &APIError{Source: "finnhub", StatusCode: 503, Message: "Service Unavailable"}
	if err.Error() != "finnhub: api error 503: Service Unavailable" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDoRequest(t *testing.T) {
	t.Run("successful request with credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.Header.Get("X-Token") != "secret" {
				t.Errorf("X-Token header = %q, want %q", r.Header.Get("X-Token"), "secret")
			}
			if r.URL.Query().Get("symbol") != "AAPL" {
				t.Errorf("symbol = %q, want AAPL", r.URL.Query().Get("symbol"))
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient("test", server.URL, WithCredentials(&auth.Credentials{Key: "secret", Header: "X-Token"}))
		body, err := c.doRequest(context.Background(), http.MethodGet, "/news", map[string][]string{"symbol": {"AAPL"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q", string(body))
		}
	})

	t.Run("4xx returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}))
		defer server.Close()

		c := NewClient("test", server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/missing", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
		if !strings.Contains(string(apiErr.Body), "not found") {
			t.Errorf("Body = %q", apiErr.Body)
		}
	})

	t.Run("429 returns RateLimitError with hint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewClient("test", server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/", nil)

		var rl *source.RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("expected *source.RateLimitError, got %T", err)
		}
		if rl.After != 7*time.Second {
			t.Errorf("After = %v, want 7s", rl.After)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 {
			t.Error("RateLimitError should wrap the APIError")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := NewClient("test", server.URL)
		_, err := c.doRequest(ctx, http.MethodGet, "/", nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient("test", server.URL, WithRetryPolicy(fastPolicy(3)))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("retries on 429 and succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient("test", server.URL, WithRetryPolicy(fastPolicy(3)))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient("test", server.URL, WithRetryPolicy(fastPolicy(3)))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/", nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("max attempts exceeded keeps last error", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient("test", server.URL, WithRetryPolicy(fastPolicy(3)))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
			t.Fatalf("err = %v, want wrapped 503 APIError", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})
}

func TestGet(t *testing.T) {
	t.Run("decodes JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"items":[{"id":1},{"id":2}]}`))
		}))
		defer server.Close()

		var resp struct {
			Items []struct {
				ID int `json:"id"`
			} `json:"items"`
		}
		c := NewClient("test", server.URL)
		if err := c.Get(context.Background(), "/news", nil, &resp); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(resp.Items) != 2 || resp.Items[1].ID != 2 {
			t.Errorf("Items = %+v", resp.Items)
		}
	})

	t.Run("invalid JSON is a structural error and not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte(`<html>maintenance</html>`))
		}))
		defer server.Close()

		var resp map[string]any
		c := NewClient("test", server.URL, WithRetryPolicy(fastPolicy(3)))
		err := c.Get(context.Background(), "/news", nil, &resp)

		var se *source.StructuralError
		if !errors.As(err, &se) {
			t.Fatalf("expected *source.StructuralError, got %T: %v", err, err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

func TestPing(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/health" {
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient("test", server.URL, WithRetryPolicy(fastPolicy(3)))
	if err := c.Ping(context.Background(), "/health"); err != nil {
		t.Errorf("Ping(/health) = %v, want nil", err)
	}
	if err := c.Ping(context.Background(), "/broken"); err == nil {
		t.Error("Ping(/broken) = nil, want error")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (ping never retries)", calls.Load())
	}
}

func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 20 rps with burst 1: the third request waits ~100ms in total.
	c := NewClient("test", server.URL, WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/", nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 80ms with rate limiting", elapsed)
	}
}
