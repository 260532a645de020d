package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"civiccite/internal/util"

	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errFlaky) },
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastPolicy(3), "embed", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 3, calls)
}

func TestDoExhaustedIsTransientBackendFailure(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), "search", func(ctx context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	require.ErrorIs(t, err, util.ErrTransientBackend)
	require.Equal(t, 2, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	perm := errors.New("bad request")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), "generate", func(ctx context.Context) (int, error) {
		calls++
		return 0, perm
	})
	require.ErrorIs(t, err, perm)
	require.NotErrorIs(t, err, util.ErrTransientBackend)
	require.Equal(t, 1, calls)
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	p := fastPolicy(2)
	p.AttemptTimeout = 5 * time.Millisecond
	calls := 0
	_, err := Do(context.Background(), p, "generate", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, util.ErrTransientBackend)
	require.Equal(t, 2, calls, "per-attempt deadline is retried")
}

func TestBackoffIsBounded(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}
	for attempt := 1; attempt < 10; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.Less(t, d, 600*time.Millisecond)
	}
}
