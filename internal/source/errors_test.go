package source

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStructuralError(t *testing.T) {
	err := &StructuralError{Source: "rss", Msg: "missing items", Err: io.ErrUnexpectedEOF}

	assert.Equal(t, "rss: malformed response: missing items: unexpected EOF", err.Error())
	assert.False(t, err.Retryable())
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestRateLimitError(t *testing.T) {
	t.Run("with hint", func(t *testing.T) {
		err := &RateLimitError{Source: "finnhub", After: 3 * time.Second}
		d, ok := err.RetryAfter()
		assert.True(t, ok)
		assert.Equal(t, 3*time.Second, d)
		assert.True(t, err.Retryable())
		assert.Contains(t, err.Error(), "retry after 3s")
	})

	t.Run("without hint", func(t *testing.T) {
		err := &RateLimitError{Source: "finnhub"}
		_, ok := err.RetryAfter()
		assert.False(t, ok)
		assert.Equal(t, "finnhub: rate limited", err.Error())
	})
}

func TestItemParseError(t *testing.T) {
	cause := errors.New("bad timestamp")
	err := &ItemParseError{Source: "polygon", Item: "https://x.test/a", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "https://x.test/a")
}
