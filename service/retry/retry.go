// Package retry implements a small bounded exponential backoff helper used
// by the storage layer: MinWait/MaxWait/MaxRetries plus a caller-supplied
// "should retry" predicate.
package retry

import (
	"context"
	"math"
	"time"
)

// Retry configures a bounded exponential backoff in seconds.
type Retry struct {
	MinWait    int
	MaxWait    int
	MaxRetries int
}

// RetryFunc calls fn until it succeeds, shouldRetry(err) returns false, or r.MaxRetries is exhausted.
func RetryFunc(ctx context.Context, fn func(ctx context.Context) error, shouldRetry func(error) bool, r Retry) error {
	var err error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt == r.MaxRetries {
			break
		}

		wait := time.Duration(r.MinWait) * time.Second
		if r.MaxWait > r.MinWait {
			backoff := float64(r.MinWait) * math.Pow(2, float64(attempt))
			if backoff > float64(r.MaxWait) {
				backoff = float64(r.MaxWait)
			}
			wait = time.Duration(backoff * float64(time.Second))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
