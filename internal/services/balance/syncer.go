// Package balance keeps the spot, margin and futures balances of the active
// session up to date, by subscription where the exchange supports it and by
// polling otherwise.
package balance

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"github.com/vadiminshakov/exgate/internal/services/connector"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPushFallbackPoll = 60 * time.Second
	defaultPullPoll         = 10 * time.Second
)

// SessionProvider exposes the active session.
type SessionProvider interface {
	Active() (domain.ExchangeSession, connector.Connector)
}

type Option func(*Syncer)

// WithPollIntervals sets the fallback poll used next to a push stream and the
// poll used when there is no stream.
func WithPollIntervals(pushFallback, pull time.Duration) Option {
	return func(s *Syncer) {
		if pushFallback > 0 {
			s.pushFallbackPoll = pushFallback
		}
		if pull > 0 {
			s.pullPoll = pull
		}
	}
}

// Syncer owns the multi-wallet snapshot of the active session.
type Syncer struct {
	l          *zap.Logger
	clock      clockwork.Clock
	sessions   SessionProvider
	dispatcher *dispatcher.Dispatcher
	bus        *events.Bus

	pushFallbackPoll time.Duration
	pullPoll         time.Duration

	mu        sync.RWMutex
	sessionID string
	snapshot  domain.MultiWalletBalance
}

func NewSyncer(
	l *zap.Logger,
	clock clockwork.Clock,
	sessions SessionProvider,
	d *dispatcher.Dispatcher,
	bus *events.Bus,
	opts ...Option,
) *Syncer {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Syncer{
		l:                l,
		clock:            clock,
		sessions:         sessions,
		dispatcher:       d,
		bus:              bus,
		pushFallbackPoll: defaultPushFallbackPoll,
		pullPoll:         defaultPullPoll,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAllWalletBalances fetches every account type supported by the session in
// parallel. Each fetched type replaces its slot; types that fail keep their
// last-known-good value. When everything fails the previous snapshot is returned
// together with the error. Demo sessions and sessions without a connector get
// synthetic balances.
func (s *Syncer) FetchAllWalletBalances(ctx context.Context) (domain.MultiWalletBalance, error) {
	sess, conn := s.sessions.Active()
	if conn == nil || sess.Mode.IsDemo() {
		snap := s.synthetic(ctx, conn)
		s.store(sess, snap, events.SourceSynthetic)
		return snap, nil
	}

	type result struct {
		balance domain.AccountBalance
		err     error
	}
	results := make(map[domain.AccountType]*result, len(domain.AccountTypes))
	p := newPricer(s.l, s.dispatcher, conn)
	var pricerMu sync.Mutex

	var g errgroup.Group
	for _, t := range sess.Capabilities.AccountTypes() {
		r := &result{}
		results[t] = r
		g.Go(func() error {
			wallet, err := dispatcher.Do(ctx, s.dispatcher, "fetchBalance:"+string(t), func(ctx context.Context) (domain.WalletBalance, error) {
				return conn.FetchBalance(ctx, t)
			})
			if err != nil {
				r.err = err
				return nil
			}
			pricerMu.Lock()
			r.balance = p.value(ctx, wallet)
			pricerMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	if s.sessionID != sess.ID {
		s.sessionID = sess.ID
		s.snapshot = domain.MultiWalletBalance{}
	}
	next := s.snapshot
	var (
		failed  int
		lastErr error
	)
	for _, t := range domain.AccountTypes {
		r, supported := results[t]
		switch {
		case !supported:
			next = next.With(t, domain.NewAccountBalance(decimal.Zero, decimal.Zero, Quote))
		case r.err != nil:
			failed++
			lastErr = r.err
			s.l.Warn("balance fetch failed, keeping last known value",
				zap.String("account", string(t)), zap.Error(r.err))
		default:
			next = next.With(t, r.balance)
		}
	}
	if failed == len(results) {
		prev := s.snapshot
		s.mu.Unlock()
		return prev, errors.Wrap(lastErr, "fetch wallet balances")
	}
	next.Timestamp = latest(next.Timestamp, s.clock.Now())
	s.snapshot = next
	s.mu.Unlock()

	s.publish(sess, next, events.SourcePoll)
	return next, nil
}

// Apply replaces one account type with the patch. The snapshot timestamp moves
// to the arrival time but never backwards.
func (s *Syncer) Apply(ctx context.Context, patch domain.BalancePatch) error {
	if !patch.Account.IsValid() {
		return domain.Errorf(domain.ErrValidation, "invalid account type %q", patch.Account)
	}
	sess, conn := s.sessions.Active()

	var bal domain.AccountBalance
	if patch.Balance != nil {
		bal = *patch.Balance
	} else {
		if conn == nil {
			return domain.Errorf(domain.ErrValidation, "no active session to value the patch")
		}
		bal = newPricer(s.l, s.dispatcher, conn).value(ctx, patch.Wallet)
	}
	arrived := patch.ArrivedAt
	if arrived.IsZero() {
		arrived = s.clock.Now()
	}

	s.mu.Lock()
	if s.sessionID != sess.ID {
		s.sessionID = sess.ID
		s.snapshot = domain.MultiWalletBalance{}
	}
	next := s.snapshot.With(patch.Account, bal)
	next.Timestamp = latest(s.snapshot.Timestamp, arrived)
	s.snapshot = next
	s.mu.Unlock()

	s.publish(sess, next, events.SourcePush)
	return nil
}

// Snapshot returns the latest multi-wallet balance.
func (s *Syncer) Snapshot() domain.MultiWalletBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Run keeps balances in sync until ctx is done, restarting whenever a new
// session is initialized.
func (s *Syncer) Run(ctx context.Context) error {
	sub := s.bus.SessionInitialized.Subscribe()
	defer s.bus.SessionInitialized.Unsubscribe(sub)

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.runSession(runCtx)
		}()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case ev := <-sub:
			cancel()
			<-done
			s.l.Info("restarting balance sync for new session", zap.String("session", ev.Payload.Session.ID))
		}
	}
}

func (s *Syncer) runSession(ctx context.Context) {
	sess, conn := s.sessions.Active()
	if streamer, ok := conn.(connector.Streamer); ok && sess.Capabilities.WS && !sess.Mode.IsDemo() {
		s.l.Info("balance sync in push mode", zap.Duration("fallback_poll", s.pushFallbackPoll))
		err := s.runPush(ctx, streamer)
		if ctx.Err() != nil {
			return
		}
		s.l.Warn("balance stream failed, falling back to polling", zap.Error(err))
	}

	s.l.Info("balance sync in pull mode", zap.Duration("interval", s.pullPoll))
	s.poll(ctx, s.pullPoll)
}

func (s *Syncer) runPush(ctx context.Context, streamer connector.Streamer) error {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.poll(pollCtx, s.pushFallbackPoll)

	deps := connector.StreamDeps{Clock: s.clock}
	if s.dispatcher != nil {
		deps.Gate = s.dispatcher
	}
	return streamer.StreamBalances(ctx, deps, func(p domain.BalancePatch) {
		if p.ArrivedAt.IsZero() {
			p.ArrivedAt = s.clock.Now()
		}
		if err := s.Apply(ctx, p); err != nil {
			s.l.Warn("apply balance patch", zap.Error(err))
		}
	})
}

func (s *Syncer) poll(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.FetchAllWalletBalances(ctx); err != nil && ctx.Err() == nil {
			s.l.Error("balance poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// synthetic values the demo connector's wallets, or the starting demo wallets
// when there is no demo connector.
func (s *Syncer) synthetic(ctx context.Context, conn connector.Connector) domain.MultiWalletBalance {
	now := s.clock.Now()
	demo, ok := conn.(*connector.Demo)
	if !ok {
		return Synthetic(now)
	}

	wallets := make(map[domain.AccountType]map[string]decimal.Decimal, len(domain.AccountTypes))
	for _, t := range domain.AccountTypes {
		w, err := demo.FetchBalance(ctx, t)
		if err != nil {
			return Synthetic(now)
		}
		wallets[t] = make(map[string]decimal.Decimal, len(w.Assets))
		for _, a := range w.Assets {
			wallets[t][a.Asset] = a.Total()
		}
	}
	return syntheticFrom(wallets, now)
}

func (s *Syncer) store(sess domain.ExchangeSession, snap domain.MultiWalletBalance, source events.BalanceSource) {
	s.mu.Lock()
	s.sessionID = sess.ID
	snap.Timestamp = latest(s.snapshot.Timestamp, snap.Timestamp)
	s.snapshot = snap
	s.mu.Unlock()

	s.publish(sess, snap, source)
}

func (s *Syncer) publish(sess domain.ExchangeSession, snap domain.MultiWalletBalance, source events.BalanceSource) {
	if s.bus == nil {
		return
	}
	mode := sess.Mode
	if mode == "" {
		mode = domain.ModeDemo
	}
	err := s.bus.BalancesUpdated.Publish(events.BalancesUpdated{
		SessionID: sess.ID,
		Mode:      mode,
		Source:    source,
		Balances:  snap,
	})
	if err != nil {
		s.l.Error("publish balances", zap.Error(err))
	}
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
