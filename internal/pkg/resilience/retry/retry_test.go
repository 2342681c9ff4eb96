package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Execute(t *testing.T) {
	t.Run("successful operation", func(t *testing.T) {
		r := New()
		callCount := 0

		err := r.Execute(t.Context(), func() error {
			callCount++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("retry until success", func(t *testing.T) {
		r := New(WithAttempts(3), WithDelay(time.Millisecond))
		callCount := 0

		err := r.Execute(t.Context(), func() error {
			callCount++
			if callCount < 2 {
				return errors.New("connection refused")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, callCount)
	})

	t.Run("retry exhausted returns last error", func(t *testing.T) {
		r := New(WithAttempts(2), WithDelay(time.Millisecond))
		expected := errors.New("connection refused")

		err := r.Execute(t.Context(), func() error {
			return expected
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, expected)
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		r := New(WithAttempts(10), WithDelay(50*time.Millisecond))
		ctx, cancel := context.WithCancel(t.Context())
		callCount := 0

		err := r.Execute(ctx, func() error {
			callCount++
			cancel()
			return errors.New("unreachable")
		})

		require.Error(t, err)
		assert.Less(t, callCount, 10)
	})

	t.Run("on retry callback sees every failed attempt", func(t *testing.T) {
		var attempts []uint
		r := New(
			WithAttempts(3),
			WithDelay(time.Millisecond),
			WithOnRetry(func(n uint, err error) {
				attempts = append(attempts, n)
			}),
		)

		_ = r.Execute(t.Context(), func() error {
			return errors.New("boom")
		})

		assert.Equal(t, []uint{0, 1, 2}, attempts)
	})
}

func TestRetry_Options(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		r := New().(*retrier)

		assert.Equal(t, uint(3), r.cfg.attempts)
		assert.Equal(t, time.Second, r.cfg.delay)
		assert.Equal(t, 5*time.Second, r.cfg.maxDelay)
		assert.True(t, r.cfg.lastErrOnly)
		assert.Nil(t, r.cfg.onRetry)
	})

	t.Run("custom options", func(t *testing.T) {
		r := New(
			WithAttempts(5),
			WithDelay(2*time.Second),
			WithMaxDelay(10*time.Second),
			WithLastErrorOnly(false),
		).(*retrier)

		assert.Equal(t, uint(5), r.cfg.attempts)
		assert.Equal(t, 2*time.Second, r.cfg.delay)
		assert.Equal(t, 10*time.Second, r.cfg.maxDelay)
		assert.False(t, r.cfg.lastErrOnly)
	})
}
