package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rickgao/marketfeed/internal/retry"
	"github.com/rickgao/marketfeed/internal/source"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

// APIError is a non-2xx response.
type APIError struct {
	Source     string
	StatusCode int
	Message    string
	Body       []byte
	After      time.Duration // parsed Retry-After, zero when absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error %d: %s", e.Source, e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth retrying: 5xx, 408 and 429.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// RetryAfter returns the server's Retry-After hint.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	return e.After, e.After > 0
}

// doRequest performs one HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", c.name, err)
		}
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, &source.StructuralError{Source: c.name, Msg: "build request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.creds.Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.name, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			Source:     c.name,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
		if d, ok := retry.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			apiErr.After = d
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &source.RateLimitError{Source: c.name, After: apiErr.After, Err: apiErr}
		}
		return nil, apiErr
	}

	return body, nil
}

// doWithRetry performs a request under the client's retry policy.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	return retry.Do(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, method, path, query)
	}, retry.WithLogger(c.logger), retry.WithName(c.name+" "+method+" "+path))
}

// Get performs a GET request with retries and decodes the JSON body into result.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &source.StructuralError{Source: c.name, Msg: "decode " + path, Err: err}
	}

	return nil
}

// Ping issues a single GET without retries and reports whether it returned 2xx/3xx.
func (c *Client) Ping(ctx context.Context, path string) error {
	_, err := c.doRequest(ctx, http.MethodGet, path, nil)
	return err
}
