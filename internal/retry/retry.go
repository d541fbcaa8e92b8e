package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts before giving up.
	DefaultMaxAttempts = 5

	// defaultInitialDelay is the first backoff delay.
	defaultInitialDelay = 1 * time.Second

	// defaultMultiplier grows the delay between attempts.
	defaultMultiplier = 2.0

	// defaultMaxDelay caps the backoff delay.
	defaultMaxDelay = 30 * time.Second

	// jitterFraction is the maximum fraction of the delay added as jitter.
	jitterFraction = 0.25
)

// ErrExhausted is wrapped into the error returned by Do when every attempt
// failed with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Policy describes how an operation is retried. It is shared by the
// repository walker, the summarizer and the embedder.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// Retryable reports whether err should trigger another attempt.
	// A nil Retryable retries every error.
	Retryable func(err error) bool

	// OnRetry, if set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns a policy with 5 attempts and a 1s, 2s, 4s, 8s
// progression capped at 30s.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		Multiplier:   defaultMultiplier,
		MaxDelay:     defaultMaxDelay,
		Retryable:    retryable,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// ceiling is reached, or ctx is cancelled. When the ceiling is reached the
// returned error wraps both ErrExhausted and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}

		// Don't sleep after the last attempt.
		if attempt < maxAttempts-1 {
			delay := p.Backoff(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt+1, delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

// Backoff calculates the delay for the given attempt (0-indexed) with jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = defaultMultiplier
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := time.Duration(float64(initial) * math.Pow(mult, float64(attempt)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	// Add jitter: up to jitterFraction of the delay.
	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64())
	return delay + jitter
}

// IsExhausted reports whether err came from a policy that ran out of attempts.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
