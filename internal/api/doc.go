// Package api provides the shared REST client used by source adapters.
//
// Every request goes through an optional token-bucket rate limiter and the
// retry package: transport errors, timeouts, 5xx, 408 and 429 are retried with
// exponential backoff (or the server's Retry-After), other 4xx fail at once.
// A response body that does not decode is a source.StructuralError and is
// never retried.
package api
