// Package retry runs calls against external backends with a per-attempt
// timeout and bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"civiccite/internal/util"
)

type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// Retryable decides whether a failed attempt is worth repeating. Deadline
	// errors of a single attempt are always retried.
	Retryable func(error) bool
}

// Backoff returns the sleep before attempt n (1-indexed) with up to 50% jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if p.MaxDelay > 0 && sleep >= p.MaxDelay {
			sleep = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && sleep > p.MaxDelay {
		sleep = p.MaxDelay
	}
	if half := int64(sleep) / 2; half > 0 {
		sleep += time.Duration(rand.Int64N(half))
	}
	return sleep
}

// Do calls fn until it succeeds, returns a non-retryable error, the parent
// context ends, or attempts run out. Exhausted retries wrap
// util.ErrTransientBackend.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		out, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %s: %v", util.ErrTransientBackend, op, ctx.Err())
		}
		if !retryable(p, err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w: %s: %v", util.ErrTransientBackend, op, ctx.Err())
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%w: %s failed after %d attempts: %v", util.ErrTransientBackend, op, attempts, lastErr)
}

func retryable(p Policy, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}
