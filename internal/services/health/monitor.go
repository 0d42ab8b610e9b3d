// Package health probes the active exchange session for liveness and latency.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"github.com/vadiminshakov/exgate/internal/services/connector"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
	"go.uber.org/zap"
)

const (
	defaultInterval          = 30 * time.Second
	defaultDegradedThreshold = 1000 * time.Millisecond
	defaultProbeSymbol       = "BTC/USDT"
)

// SessionProvider exposes the active session.
type SessionProvider interface {
	Active() (domain.ExchangeSession, connector.Connector)
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithDegradedThreshold sets the probe latency above which the exchange is degraded.
func WithDegradedThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.degradedAfter = d
		}
	}
}

func WithProbeSymbol(symbol string) Option {
	return func(m *Monitor) {
		if symbol != "" {
			m.probeSymbol = symbol
		}
	}
}

// Monitor owns the health status; callers only read it.
type Monitor struct {
	l          *zap.Logger
	clock      clockwork.Clock
	sessions   SessionProvider
	dispatcher *dispatcher.Dispatcher
	bus        *events.Bus

	interval      time.Duration
	degradedAfter time.Duration
	probeSymbol   string

	mu     sync.RWMutex
	status domain.HealthStatus
}

func NewMonitor(
	l *zap.Logger,
	clock clockwork.Clock,
	sessions SessionProvider,
	d *dispatcher.Dispatcher,
	bus *events.Bus,
	opts ...Option,
) *Monitor {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Monitor{
		l:             l,
		clock:         clock,
		sessions:      sessions,
		dispatcher:    d,
		bus:           bus,
		interval:      defaultInterval,
		degradedAfter: defaultDegradedThreshold,
		probeSymbol:   defaultProbeSymbol,
		status:        domain.HealthStatus{State: domain.HealthUnknown},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check probes once and records the result. A state change publishes a healthUpdate.
// A probe cut short by ctx is not recorded and the previous status is returned.
func (m *Monitor) Check(ctx context.Context) domain.HealthStatus {
	sess, conn := m.sessions.Active()

	var status domain.HealthStatus
	switch {
	case conn == nil:
		status = domain.HealthStatus{State: domain.HealthDown, Message: "no active exchange session"}
	case sess.Mode.IsDemo():
		status = domain.HealthStatus{State: domain.HealthHealthy, OK: true, Message: "demo exchange"}
	default:
		status = m.probe(ctx, conn)
		if ctx.Err() != nil {
			return m.Status()
		}
	}
	status.LastChecked = m.clock.Now()

	m.mu.Lock()
	prev := m.status.State
	m.status = status
	m.mu.Unlock()

	if prev != status.State {
		m.l.Info("exchange health changed",
			zap.String("from", string(prev)),
			zap.String("to", string(status.State)),
			zap.Int64("latency_ms", status.LatencyMs),
			zap.String("message", status.Message))
		if m.bus != nil {
			if err := m.bus.HealthUpdate.Publish(events.HealthUpdate{Previous: prev, Status: status}); err != nil {
				m.l.Error("publish health update", zap.Error(err))
			}
		}
	}
	return status
}

func (m *Monitor) probe(ctx context.Context, conn connector.Connector) domain.HealthStatus {
	start := m.clock.Now()
	_, err := dispatcher.Do(ctx, m.dispatcher, "healthProbe", func(ctx context.Context) (domain.Ticker, error) {
		return conn.FetchTicker(ctx, m.probeSymbol)
	})
	latency := m.clock.Since(start)

	status := domain.HealthStatus{LatencyMs: latency.Milliseconds()}
	switch {
	case err != nil:
		status.State = domain.HealthDown
		status.Message = err.Error()
	case latency > m.degradedAfter:
		status.State = domain.HealthDegraded
		status.OK = true
		status.Degraded = true
		status.Message = fmt.Sprintf("probe took %dms, above %dms", latency.Milliseconds(), m.degradedAfter.Milliseconds())
	default:
		status.State = domain.HealthHealthy
		status.OK = true
	}
	return status
}

// Status returns the latest probe result.
func (m *Monitor) Status() domain.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}
