package retry

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff grows the delay geometrically from a base up to a cap and
// spreads it with proportional jitter.
type ExponentialBackoff struct {
	base        time.Duration
	ceiling     time.Duration
	factor      float64
	maxAttempts int // -1 = unlimited, 0 = no retries

	// spread of 0.1 means +/- 10%
	spread float64
	random func() float64
}

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.base = d
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.ceiling = d
	}
}

// WithMultiplier sets the growth factor between attempts.
func WithMultiplier(m float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.factor = m
	}
}

// WithJitter sets the jitter fraction, clamped to [0, 1].
func WithJitter(j float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.spread = math.Max(0, math.Min(1, j))
	}
}

// WithJitterFunc replaces the random source; f must return values in [0, 1).
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.random = f
	}
}

// NewExponentialBackoff creates a backoff starting at 100ms, doubling up to 30s, with 10% jitter.
//
// Example:
//
//	backoff := retry.NewExponentialBackoff(5,
//	    retry.WithInitialDelay(200 * time.Millisecond),
//	    retry.WithMaxDelay(10 * time.Second),
//	)
func NewExponentialBackoff(maxAttempts int, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		base:        100 * time.Millisecond,
		ceiling:     30 * time.Second,
		factor:      2.0,
		maxAttempts: maxAttempts,
		spread:      0.1,
		random:      rand.Float64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TransferBackoff paces retries of object uploads and load jobs: 500ms doubling to 30s.
func TransferBackoff(maxAttempts int) *ExponentialBackoff {
	return NewExponentialBackoff(maxAttempts,
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(30*time.Second),
	)
}

// MergeBackoff paces retries of merges that lost a conflict on a master relation:
// 50ms doubling to 2s with +/- 50% jitter, so competing batches do not retry in step.
func MergeBackoff(maxAttempts int) *ExponentialBackoff {
	return NewExponentialBackoff(maxAttempts,
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(2*time.Second),
		WithJitter(0.5),
	)
}

// NextDelay returns the delay before retry number attempt (zero-indexed).
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.base) * math.Pow(b.factor, float64(attempt))
	if delay > float64(b.ceiling) {
		delay = float64(b.ceiling)
	}
	if b.spread > 0 {
		// [0,1) -> [-1,1)
		offset := (b.random() - 0.5) * 2.0
		delay *= 1.0 + b.spread*offset
	}
	return time.Duration(delay).Round(time.Millisecond)
}

// MaxAttempts returns the maximum number of retry attempts.
func (b *ExponentialBackoff) MaxAttempts() int {
	return b.maxAttempts
}
