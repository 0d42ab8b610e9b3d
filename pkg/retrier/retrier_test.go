package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New()
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		r := New(WithMaxRetries(3), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after max retries", func(t *testing.T) {
		r := New(WithMaxRetries(2), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})
}

func TestRetrier_DoWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		r := New()
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", val)
	})

	t.Run("fail returns error", func(t *testing.T) {
		r := New(WithMaxRetries(1), WithInitialInterval(1*time.Millisecond))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}

func TestRetrier_RetryIf(t *testing.T) {
	permanent := errors.New("permanent")
	transient := errors.New("transient")

	r := New(WithMaxRetries(5), WithInitialInterval(time.Millisecond), WithRetryIf(func(err error) bool {
		return errors.Is(err, transient)
	}))

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return transient
		}
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_FullJitterBounds(t *testing.T) {
	r := New(WithFullJitter())

	var bounds []int64
	r.randInt63n = func(n int64) int64 {
		bounds = append(bounds, n)
		return n - 1
	}

	for _, interval := range []time.Duration{time.Millisecond, time.Second, 10 * time.Second} {
		wait := r.backoff(interval)
		assert.GreaterOrEqual(t, wait, time.Duration(0))
		assert.Less(t, wait, interval)
	}
	assert.Equal(t, []int64{int64(time.Millisecond), int64(time.Second), int64(10 * time.Second)}, bounds)
	assert.Zero(t, r.backoff(0))
}

func TestRetrier_ExponentialIntervalsOnFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var waits []time.Duration
	r := New(
		WithClock(clock),
		WithMaxRetries(3),
		WithInitialInterval(100*time.Millisecond),
		WithMaxInterval(300*time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, err error, wait time.Duration) {
			waits = append(waits, wait)
		}),
	)

	done := make(chan error, 1)
	go func() {
		done <- r.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		cancel()
		clock.Advance(time.Second)
	}

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("retrier did not finish")
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, waits)
}
