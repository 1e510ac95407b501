package retry

import (
	"context"
	"discharge-export-service/internal/pkg/exceptions"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestDo(t *testing.T) {
	t.Run("retries transient errors up to max attempts", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) (string, error) {
			calls++
			assert.Equal(t, calls, attempt)
			return "", exceptions.ErrSourceUnavailable("fetch document", errors.New("connection reset"))
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, exceptions.IsKind(err, exceptions.KindSourceUnavailable))
	})

	t.Run("does not retry non transient errors", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", exceptions.ErrSourceNotFound("fetch document", errors.New("404"))
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, exceptions.KindSourceNotFound, exceptions.KindOf(err))
	})

	t.Run("returns the value once an attempt succeeds", func(t *testing.T) {
		calls := 0
		value, err := Do(context.Background(), fastPolicy(4), func(ctx context.Context, attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "", exceptions.ErrDestinationWriteFailed("create binary", true, errors.New("502"))
			}
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", value)
		assert.Equal(t, 3, calls)
	})

	t.Run("custom retryable predicate", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("flaky")
		policy := fastPolicy(2).WithRetryable(func(err error) bool { return errors.Is(err, sentinel) })
		err := Run(context.Background(), policy, func(ctx context.Context, attempt int) error {
			calls++
			return sentinel
		})

		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 2, calls)
	})

	t.Run("notifies before every retry", func(t *testing.T) {
		var retried []int
		policy := fastPolicy(3).WithOnRetry(func(err error, attempt int, delay time.Duration) {
			retried = append(retried, attempt)
		})
		_ = Run(context.Background(), policy, func(ctx context.Context, attempt int) error {
			return exceptions.ErrPublishUnavailable(errors.New("broker down"))
		})

		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		policy := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 1}
		err := Run(ctx, policy, func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return exceptions.ErrSourceUnavailable("fetch document", errors.New("timeout"))
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("no retry runs once", func(t *testing.T) {
		calls := 0
		_ = Run(context.Background(), NoRetry(), func(ctx context.Context, attempt int) error {
			calls++
			return exceptions.ErrSourceUnavailable("fetch document", errors.New("timeout"))
		})

		assert.Equal(t, 1, calls)
	})
}
