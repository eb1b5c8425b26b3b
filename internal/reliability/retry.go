// Package reliability provides the retry policies used when dialing
// the broker.
package reliability

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether and when a failed attempt is retried.
type RetryPolicy interface {
	// ShouldRetry determines if a retry should be attempted after the
	// given zero-based attempt failed with err.
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// NextDelay calculates the delay before the given retry.
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (or multiplies) the delay between
// attempts, optionally capped and jittered.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration // 0 means uncapped
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates an exponential backoff policy without
// jitter, so delays are deterministic.
func NewExponentialBackoff(initial time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
	}
}

// ShouldRetry implements RetryPolicy.
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts-1 {
		return false, 0
	}
	if !isRetryableError(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

// NextDelay implements RetryPolicy.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if e.MaxInterval > 0 && delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay // ±15%
		delay = delay + jitter - (0.15 * delay)
	}
	return time.Duration(delay)
}

// Retry executes fn until it succeeds, the policy gives up, or ctx is
// cancelled. The last error is returned on failure.
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		shouldRetry, delay := policy.ShouldRetry(attempt, err)
		if !shouldRetry {
			return lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// isRetryableError checks the optional retryable interface on err.
// Errors that do not implement it are assumed retryable.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}

	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return true
}

// PermanentError wraps an error that must never be retried, such as a
// broker auth refusal.
type PermanentError struct {
	Err error
}

func (p PermanentError) Error() string { return p.Err.Error() }

// IsRetryable marks the error as permanent for Retry.
func (p PermanentError) IsRetryable() bool { return false }

func (p PermanentError) Unwrap() error { return p.Err }
