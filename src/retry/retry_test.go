package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(4), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 4, calls)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})

	require.ErrorIs(t, err, boom)
	require.False(t, IsPermanent(err), "permanent wrapper must be stripped")
	require.Equal(t, 1, calls)
}

func TestDoRespectsRetryable(t *testing.T) {
	calls := 0
	policy := fastPolicy(5)
	policy.Retryable = func(err error) bool { return errors.Is(err, errTransient) }

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return errors.New("business rule")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{Attempts: 10, BaseDelay: time.Hour, MaxBackoff: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, policy, func(ctx context.Context) error { return errTransient })
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, err, errTransient)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	require.Equal(t, 100*time.Millisecond, Backoff(base, max, 1))
	require.Equal(t, 200*time.Millisecond, Backoff(base, max, 2))
	require.Equal(t, 800*time.Millisecond, Backoff(base, max, 4))
	require.Equal(t, time.Second, Backoff(base, max, 5))
	require.Equal(t, time.Second, Backoff(base, max, 50))
}
