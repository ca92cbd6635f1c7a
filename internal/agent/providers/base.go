package providers

import (
	"context"
	"time"
)

// retryPolicy holds the retry knobs shared by every provider adapter.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

func newRetryPolicy(maxAttempts int, baseDelay time.Duration) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return retryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// do runs op up to maxAttempts times, backing off exponentially between
// attempts. Non-retryable errors and context cancellation end the loop
// immediately.
func (p retryPolicy) do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: baseDelay, 2*baseDelay, 4*baseDelay, ...
			delay := p.baseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable == nil || !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
