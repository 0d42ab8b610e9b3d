// Package dispatcher gates every outbound exchange call behind a token bucket,
// a concurrency cap, bounded retries and a per-operation deadline.
package dispatcher

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Operation an idempotent call into an exchange connector.
type Operation func(ctx context.Context) error

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	l     *zap.Logger
	clock clockwork.Clock

	mu       sync.Mutex
	settings Settings
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	retrier  *retrier.Retrier

	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New creates a dispatcher with default limits overridden by opts.
func New(l *zap.Logger, clock clockwork.Clock, opts ...Option) *Dispatcher {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &Dispatcher{l: l, clock: clock}
	d.apply(opts)
	return d
}

// Reconfigure atomically replaces the limits, e.g. when a new session starts.
// Requests already holding a concurrency slot finish against the old cap.
func (d *Dispatcher) Reconfigure(opts ...Option) {
	d.apply(opts)
	s := d.Settings()
	d.l.Info("dispatcher reconfigured",
		zap.Int("burst", s.Burst),
		zap.Duration("refill", s.RefillInterval),
		zap.Int("max_concurrent", s.MaxConcurrent),
		zap.Duration("timeout", s.Timeout))
}

func (d *Dispatcher) apply(opts []Option) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.settings
	if d.limiter == nil {
		s = DefaultSettings()
	}
	for _, opt := range opts {
		opt(&s)
	}
	s = s.withDefaults()

	now := d.clock.Now()
	limit := rate.Every(s.RefillInterval)
	if d.limiter == nil {
		d.limiter = rate.NewLimiter(limit, s.Burst)
	} else {
		d.limiter.SetLimitAt(now, limit)
		d.limiter.SetBurstAt(now, s.Burst)
	}
	if d.sem == nil || s.MaxConcurrent != d.settings.MaxConcurrent {
		d.sem = semaphore.NewWeighted(int64(s.MaxConcurrent))
	}
	d.retrier = retrier.New(
		retrier.WithClock(d.clock),
		retrier.WithMaxRetries(s.MaxRetries),
		retrier.WithInitialInterval(s.BackoffInitial),
		retrier.WithMaxInterval(s.BackoffMax),
		retrier.WithFullJitter(),
		retrier.WithRetryIf(domain.IsTransient),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			d.l.Warn("retrying exchange call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}),
	)
	d.settings = s
}

// Settings returns the active limits.
func (d *Dispatcher) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// Level returns the number of tokens currently in the bucket.
func (d *Dispatcher) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	level := d.limiter.TokensAt(d.clock.Now())
	return math.Max(0, math.Min(level, float64(d.settings.Burst)))
}

// InFlight returns the number of operations currently executing.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Waiting returns the number of operations waiting for a token or a slot.
func (d *Dispatcher) Waiting() int {
	return int(d.waiting.Load())
}

// Submit runs op through admission, the concurrency cap and the retry policy.
// It fails with domain.ErrTimeout once the deadline passes; a late result is discarded.
func (d *Dispatcher) Submit(ctx context.Context, name string, op Operation) error {
	_, err := d.submit(ctx, name, func(ctx context.Context) (any, error) {
		return nil, op(ctx)
	})
	return err
}

// Do is Submit for operations returning a value.
func Do[T any](ctx context.Context, d *Dispatcher, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := d.submit(ctx, name, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		return zero, err
	}
	res, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return res, nil
}

type outcome struct {
	value any
	err   error
}

func (d *Dispatcher) submit(ctx context.Context, name string, op func(ctx context.Context) (any, error)) (any, error) {
	s := d.Settings()
	req := newRequest(name, d.clock.Now(), s.Timeout)

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := d.run(opCtx, req, op)
		done <- outcome{value: v, err: err}
	}()

	timer := d.clock.NewTimer(s.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			req.finish(StateFailed)
			if !errors.Is(out.err, context.Canceled) {
				d.l.Error("exchange call failed", zap.String("op", name), zap.Error(out.err))
			}
			return nil, errors.Wrapf(out.err, "%s", name)
		}
		req.finish(StateCompleted)
		return out.value, nil
	case <-timer.Chan():
		req.finish(StateTimedOut)
		d.l.Warn("exchange call timed out",
			zap.String("op", name),
			zap.Duration("timeout", s.Timeout),
			zap.String("state", req.State().String()))
		return nil, domain.Errorf(domain.ErrTimeout, "%s exceeded %s", name, s.Timeout)
	case <-ctx.Done():
		req.finish(StateFailed)
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, req *Request, op func(ctx context.Context) (any, error)) (any, error) {
	d.mu.Lock()
	r := d.retrier
	d.mu.Unlock()

	return retrier.DoWithData(r, ctx, func(ctx context.Context) (any, error) {
		d.waiting.Add(1)
		sem, err := d.acquire(ctx, req)
		d.waiting.Add(-1)
		if err != nil {
			return nil, err
		}
		req.set(StateExecuting)
		d.inFlight.Add(1)
		defer func() {
			d.inFlight.Add(-1)
			sem.Release(1)
		}()
		return op(ctx)
	})
}

// acquire waits for a token, then for a concurrency slot.
func (d *Dispatcher) acquire(ctx context.Context, req *Request) (*semaphore.Weighted, error) {
	if err := d.admit(ctx); err != nil {
		return nil, err
	}
	req.set(StateTokenGranted)

	d.mu.Lock()
	sem := d.sem
	d.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return sem, nil
}

// admit takes one token, waiting for the next refill when the bucket is empty.
// The bucket is never borrowed from, so its level cannot go negative.
func (d *Dispatcher) admit(ctx context.Context) error {
	for {
		now := d.clock.Now()

		d.mu.Lock()
		if d.limiter.AllowN(now, 1) {
			d.mu.Unlock()
			return nil
		}
		missing := 1 - d.limiter.TokensAt(now)
		wait := time.Duration(math.Ceil(missing / float64(d.limiter.Limit()) * float64(time.Second)))
		d.mu.Unlock()

		if wait <= 0 {
			wait = time.Nanosecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(wait):
		}
	}
}
