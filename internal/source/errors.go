package source

import (
	"fmt"
	"time"
)

// StructuralError means a response did not have the expected shape.
type StructuralError struct {
	Source string
	Msg    string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Source, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Source, e.Msg)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Retryable is always false: retrying a malformed response returns the same shape.
func (e *StructuralError) Retryable() bool { return false }

// RateLimitError means the vendor throttled the request.
type RateLimitError struct {
	Source string
	After  time.Duration // zero when the vendor sent no hint
	Err    error
}

func (e *RateLimitError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Source, e.After)
	}
	return fmt.Sprintf("%s: rate limited", e.Source)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Retryable is always true.
func (e *RateLimitError) Retryable() bool { return true }

// RetryAfter returns the vendor's hint, if any.
func (e *RateLimitError) RetryAfter() (time.Duration, bool) {
	return e.After, e.After > 0
}

// ItemParseError describes a single item that could not be parsed.
type ItemParseError struct {
	Source string
	Item   string // vendor id or url, whatever identifies the item
	Err    error
}

func (e *ItemParseError) Error() string {
	return fmt.Sprintf("%s: skip item %q: %v", e.Source, e.Item, e.Err)
}

func (e *ItemParseError) Unwrap() error { return e.Err }
