package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy configures Do.
type Policy struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	BaseDelay   time.Duration // delay before the first retry (default: 1s)
	Multiplier  float64       // growth per attempt (default: 2)
	Jitter      time.Duration // upper bound of uniform jitter added to each delay (default: 500ms)
	MaxDelay    time.Duration // cap on the computed delay, 0 = no cap (default: 30s)
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		Jitter:      500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Delay returns the un-jittered delay before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Option configures a single Do call.
type Option func(*options)

type options struct {
	logger *slog.Logger
	name   string
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName labels the operation in retry notices.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Do runs op until it succeeds, fails terminally, or the policy runs out of attempts.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	p = p.withDefaults()
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		attempts int
		lastErr  error
	)
	schedule := &exponential{policy: p}

	operation := func() (T, error) {
		attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if Classify(err) == Terminal {
			return res, backoff.Permanent(err)
		}
		if d, ok := HintFrom(err); ok {
			schedule.hint(d)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		o.logger.Debug("retrying",
			"op", o.name,
			"attempt", attempts,
			"backoff", next,
			"error", err,
		)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return res, nil
	}

	// The final attempt returns the wrapped error as-is.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}

	switch {
	case ctx.Err() != nil && lastErr != nil && !errors.Is(lastErr, ctx.Err()):
		return res, errors.Join(ctx.Err(), lastErr)
	case Classify(err) == Retryable && attempts >= p.MaxAttempts:
		return res, fmt.Errorf("max attempts (%d) exceeded: %w", p.MaxAttempts, err)
	}
	return res, err
}

// exponential implements backoff.BackOff as base*multiplier^n plus uniform
// jitter. A pending server hint replaces the computed delay for one retry; the
// attempt counter still advances so later delays keep growing.
type exponential struct {
	policy  Policy
	attempt int
	pending time.Duration
}

func (e *exponential) hint(d time.Duration) {
	e.pending = d
}

func (e *exponential) NextBackOff() time.Duration {
	d := e.policy.Delay(e.attempt)
	e.attempt++
	if e.pending > 0 {
		d, e.pending = e.pending, 0
		return d
	}
	if e.policy.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(e.policy.Jitter)))
	}
	return d
}

func (e *exponential) Reset() {
	e.attempt = 0
	e.pending = 0
}
