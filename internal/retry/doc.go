// Package retry wraps network calls with exponential backoff.
//
// Failures are classified as retryable (timeouts, transport errors, 5xx,
// 408, 429) or terminal (other 4xx, malformed responses). Terminal failures
// return immediately. Retryable failures wait for the server's retry-after
// hint when one is present, otherwise base*multiplier^attempt plus uniform
// jitter. When attempts run out the last error is returned wrapped.
package retry
