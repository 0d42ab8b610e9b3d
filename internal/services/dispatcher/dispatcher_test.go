package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

func noop(ctx context.Context) error { return nil }

func blockUntil(t *testing.T, clock *clockwork.FakeClock, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, waiters))
}

func TestDispatcher_SixthOperationWaitsForRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(zap.NewNop(), clock, WithBurst(5), WithRefillInterval(2*time.Second))
	ctx := context.Background()
	start := clock.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Submit(ctx, "fetchTicker", noop))
	}
	assert.Zero(t, d.Level())

	executed := make(chan time.Time, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Submit(ctx, "fetchTicker", func(ctx context.Context) error {
			executed <- clock.Now()
			return nil
		})
	}()

	// deadline timer + admission wait
	blockUntil(t, clock, 2)
	clock.Advance(time.Second)

	select {
	case <-executed:
		t.Fatal("sixth operation admitted before a token was refilled")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)

	select {
	case at := <-executed:
		assert.GreaterOrEqual(t, at.Sub(start), 2*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("sixth operation was never admitted")
	}
	require.NoError(t, <-errCh)
}

func TestDispatcher_LevelStaysWithinBurst(t *testing.T) {
	const burst = 5
	interval := 2 * time.Second

	for idle := 0; idle <= burst+2; idle++ {
		clock := clockwork.NewFakeClock()
		d := New(zap.NewNop(), clock, WithBurst(burst), WithRefillInterval(interval))

		assert.Equal(t, float64(burst), d.Level())
		for i := 0; i < burst; i++ {
			require.NoError(t, d.Submit(context.Background(), "drain", noop))
		}
		assert.Zero(t, d.Level())

		for i := 0; i < idle; i++ {
			clock.Advance(interval)
			level := d.Level()
			assert.GreaterOrEqual(t, level, 0.0)
			assert.LessOrEqual(t, level, float64(burst))
		}
		assert.Equal(t, float64(min(burst, idle)), d.Level(), "idle intervals: %d", idle)
	}
}

func TestDispatcher_ConcurrencyCap(t *testing.T) {
	d := New(zap.NewNop(), clockwork.NewRealClock(), WithBurst(10), WithMaxConcurrent(2))
	release := make(chan struct{})

	var running, peak atomic.Int64
	op := func(ctx context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	}

	errCh := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errCh <- d.Submit(context.Background(), "createOrder", op) }()
	}

	assert.Eventually(t, func() bool {
		return d.InFlight() == 2 && d.Waiting() == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errCh)
	}
	assert.Equal(t, int64(2), peak.Load())
	assert.Zero(t, d.InFlight())
}

func TestDispatcher_RetryPolicy(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		kind         error
		wantAttempts int
		wantKind     error
	}{
		{name: "network error recovered", failures: 2, kind: domain.ErrNetwork, wantAttempts: 3},
		{name: "rate limit recovered", failures: 1, kind: domain.ErrRateLimitExceeded, wantAttempts: 2},
		{name: "rate limit exhausted", failures: 10, kind: domain.ErrRateLimitExceeded, wantAttempts: 4, wantKind: domain.ErrRateLimitExceeded},
		{name: "authentication not retried", failures: 10, kind: domain.ErrAuthentication, wantAttempts: 1, wantKind: domain.ErrAuthentication},
		{name: "validation not retried", failures: 10, kind: domain.ErrValidation, wantAttempts: 1, wantKind: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(zap.NewNop(), clockwork.NewRealClock(),
				WithBurst(20),
				WithMaxRetries(3),
				WithBackoff(time.Millisecond, 2*time.Millisecond))

			attempts := 0
			got, err := Do(context.Background(), d, "fetchBalance", func(ctx context.Context) (string, error) {
				attempts++
				if attempts <= tt.failures {
					return "", domain.NewError(tt.kind, errors.New("boom"))
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
		})
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	d := New(zap.NewNop(), clockwork.NewRealClock(), WithTimeout(30*time.Millisecond))

	finished := make(chan struct{})
	_, err := Do(context.Background(), d, "loadMarkets", func(ctx context.Context) (int, error) {
		defer close(finished)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 42, nil
		}
	})

	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.False(t, domain.IsTransient(err))

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned operation was not released")
	}
}

func TestDispatcher_Reconfigure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(zap.NewNop(), clock)
	assert.Equal(t, DefaultSettings(), d.Settings())

	d.Reconfigure(WithBurst(2), WithMaxConcurrent(1))

	s := d.Settings()
	assert.Equal(t, 2, s.Burst)
	assert.Equal(t, 1, s.MaxConcurrent)
	assert.Equal(t, defaultRefillInterval, s.RefillInterval)
	assert.Equal(t, 2.0, d.Level())
}
