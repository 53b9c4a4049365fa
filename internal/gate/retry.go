package gate

import (
	"context"
	"math/rand"
	"time"

	"github.com/ternarybob/profundo/internal/models"
)

// RetryPolicy bounds retries of transient upstream failures with
// exponential backoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns the standard policy for gated calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the delay before the given attempt (1-based), with
// +/-25% jitter to avoid synchronized retries.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.Multiplier
	}
	if max := float64(p.MaxBackoff); backoff > max {
		backoff = max
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

// Execute runs fn up to MaxAttempts times, sleeping between attempts.
// Non-retryable errors and context cancellation stop immediately; the
// last error is returned when attempts are exhausted.
func (p RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !models.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
