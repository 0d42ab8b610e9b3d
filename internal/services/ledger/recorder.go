// Package ledger records budget state transitions per strategy. Writes to the
// backend store are protected by a re-entrancy guard, throttling with
// debounce and a circuit breaker. Every entry is also kept in a bounded local
// ring, so history stays readable while the store is unavailable.
package ledger

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"go.uber.org/zap"
)

const (
	defaultThrottle     = 5 * time.Second
	defaultDebounce     = 1 * time.Second
	defaultMaxErrors    = 3
	defaultCircuitReset = 60 * time.Second
	defaultHistoryCap   = 100
	defaultGuardTTL     = 30 * time.Second
	defaultStoreTimeout = 10 * time.Second
)

// Store is the backend relational store for budgets and history.
type Store interface {
	GetBudget(ctx context.Context, strategyID string) (domain.StrategyBudget, bool, error)
	InsertHistory(ctx context.Context, e domain.BudgetHistoryEntry) error
	ListHistory(ctx context.Context, strategyID string, limit int) ([]domain.BudgetHistoryEntry, error)
	ListHistorySince(ctx context.Context, strategyID string, since time.Time) ([]domain.BudgetHistoryEntry, error)
}

// Journal durably mirrors the local rings.
type Journal interface {
	Append(entry domain.BudgetHistoryEntry) error
	Replay(fn func(domain.BudgetHistoryEntry)) error
}

// ModeProvider reports the session mode. Demo sessions never write to the store.
type ModeProvider interface {
	Mode() domain.Mode
}

type Option func(*Recorder)

func WithStore(s Store) Option {
	return func(r *Recorder) { r.store = s }
}

func WithJournal(j Journal) Option {
	return func(r *Recorder) { r.journal = j }
}

func WithModeProvider(p ModeProvider) Option {
	return func(r *Recorder) { r.modes = p }
}

// WithTiming overrides the throttle window and the debounce delay.
func WithTiming(throttle, debounce time.Duration) Option {
	return func(r *Recorder) {
		if throttle >= 0 {
			r.throttle = throttle
		}
		if debounce > 0 {
			r.debounce = debounce
		}
	}
}

// WithCircuit overrides the failure threshold and the cooldown of the breaker.
func WithCircuit(maxErrors int, reset time.Duration) Option {
	return func(r *Recorder) {
		if maxErrors > 0 {
			r.maxErrors = maxErrors
		}
		if reset > 0 {
			r.circuitReset = reset
		}
	}
}

func WithHistoryCap(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.historyCap = n
		}
	}
}

type keyState struct {
	guarded   bool
	guardedAt time.Time

	lastRecord time.Time
	pending    *domain.BudgetHistoryEntry
	timer      clockwork.Timer
	gen        uint64

	circuit domain.CircuitState
	ring    []domain.BudgetHistoryEntry
}

// Recorder owns the circuit state and the local history of every strategy.
type Recorder struct {
	l     *zap.Logger
	clock clockwork.Clock
	bus   *events.Bus

	store   Store
	journal Journal
	modes   ModeProvider

	throttle     time.Duration
	debounce     time.Duration
	maxErrors    int
	circuitReset time.Duration
	historyCap   int
	guardTTL     time.Duration
	storeTimeout time.Duration

	mu   sync.Mutex
	keys map[string]*keyState

	idMu    sync.Mutex
	entropy io.Reader
}

func NewRecorder(l *zap.Logger, clock clockwork.Clock, bus *events.Bus, opts ...Option) *Recorder {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Recorder{
		l:            l,
		clock:        clock,
		bus:          bus,
		throttle:     defaultThrottle,
		debounce:     defaultDebounce,
		maxErrors:    defaultMaxErrors,
		circuitReset: defaultCircuitReset,
		historyCap:   defaultHistoryCap,
		guardTTL:     defaultGuardTTL,
		storeTimeout: defaultStoreTimeout,
		keys:         make(map[string]*keyState),
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordChange runs the entry through the pipeline. It never fails: invalid
// entries and store errors are logged, and store errors feed the breaker.
func (r *Recorder) RecordChange(entry domain.BudgetHistoryEntry) {
	if err := entry.Validate(); err != nil {
		r.l.Warn("dropping invalid ledger entry", zap.Error(err))
		return
	}
	now := r.clock.Now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	key := entry.StrategyID

	r.mu.Lock()
	st := r.state(key)
	if st.guarded {
		r.mu.Unlock()
		r.l.Debug("ledger record in progress, dropping entry",
			zap.String("strategy", key), zap.String("change", string(entry.ChangeType)))
		return
	}
	if !st.lastRecord.IsZero() && now.Sub(st.lastRecord) < r.throttle {
		st.pending = &entry
		r.armLocked(key, st)
		r.mu.Unlock()
		return
	}
	st.guarded = true
	st.guardedAt = now
	r.mu.Unlock()

	r.process(entry)
}

// armLocked replaces any pending debounce timer of the key.
func (r *Recorder) armLocked(key string, st *keyState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.gen++
	gen := st.gen
	st.timer = r.clock.AfterFunc(r.debounce, func() { r.flush(key, gen) })
}

func (r *Recorder) flush(key string, gen uint64) {
	r.mu.Lock()
	st := r.state(key)
	if st.gen != gen || st.pending == nil {
		r.mu.Unlock()
		return
	}
	if st.guarded {
		r.armLocked(key, st)
		r.mu.Unlock()
		return
	}
	entry := *st.pending
	st.pending = nil
	st.timer = nil
	st.guarded = true
	st.guardedAt = r.clock.Now()
	r.mu.Unlock()

	r.process(entry)
}

func (r *Recorder) process(entry domain.BudgetHistoryEntry) {
	key := entry.StrategyID
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	r.mu.Lock()
	open := r.circuitOpenLocked(key, r.state(key))
	r.mu.Unlock()

	// demo mode never touches the store, so it cannot feed the breaker
	useStore := r.store != nil && !open && !r.isDemo()
	var failure error
	if useStore {
		failure = r.fillIn(ctx, &entry)
	}
	if entry.ID == "" {
		entry.ID = r.newID(entry.Timestamp)
	}

	r.appendLocal(entry, true)

	persisted := false
	switch {
	case failure != nil:
	case open:
		r.l.Warn("ledger store write skipped",
			zap.String("strategy", key),
			zap.Error(domain.NewError(domain.ErrCircuitOpen, nil)))
	case useStore:
		if err := r.store.InsertHistory(ctx, entry); err != nil {
			failure = err
		} else {
			persisted = true
		}
	}

	r.mu.Lock()
	st := r.state(key)
	if failure != nil {
		r.failureLocked(key, st, failure)
	} else {
		if persisted {
			st.circuit = domain.CircuitState{}
		}
		st.lastRecord = r.clock.Now()
	}
	st.guarded = false
	r.mu.Unlock()

	if r.bus != nil {
		err := r.bus.HistoryUpdated.Publish(events.HistoryUpdated{StrategyID: key, Entry: entry, LocalOnly: !persisted})
		if err != nil {
			r.l.Error("publish history update", zap.Error(err))
		}
	}
	r.l.Debug("ledger entry recorded",
		zap.String("strategy", key),
		zap.String("id", entry.ID),
		zap.String("change", string(entry.ChangeType)),
		zap.Bool("persisted", persisted))
}

// fillIn takes missing figures from the strategy's current budget.
func (r *Recorder) fillIn(ctx context.Context, e *domain.BudgetHistoryEntry) error {
	if !e.Total.IsZero() && !e.Allocated.IsZero() && !e.Available.IsZero() {
		return nil
	}
	b, found, err := r.store.GetBudget(ctx, e.StrategyID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if e.Total.IsZero() {
		e.Total = b.Total
	}
	if e.Allocated.IsZero() {
		e.Allocated = b.Allocated
	}
	if e.Available.IsZero() {
		e.Available = b.Available
	}
	return nil
}

func (r *Recorder) failureLocked(key string, st *keyState, err error) {
	now := r.clock.Now()
	st.circuit.ErrorCount++
	st.circuit.LastFailure = now
	r.l.Error("ledger store write failed",
		zap.String("strategy", key),
		zap.Int("errors", st.circuit.ErrorCount),
		zap.Error(err))
	if st.circuit.ErrorCount >= r.maxErrors && !st.circuit.Broken {
		st.circuit.Broken = true
		st.circuit.ResetDeadline = now.Add(r.circuitReset)
		r.l.Warn("ledger circuit opened",
			zap.String("strategy", key),
			zap.Time("reset_at", st.circuit.ResetDeadline))
	}
}

// circuitOpenLocked reports whether store writes are suspended, closing the
// circuit once the cooldown has elapsed.
func (r *Recorder) circuitOpenLocked(key string, st *keyState) bool {
	if !st.circuit.Broken {
		return false
	}
	if r.clock.Now().Before(st.circuit.ResetDeadline) {
		return true
	}
	st.circuit = domain.CircuitState{}
	r.l.Info("ledger circuit reset", zap.String("strategy", key))
	return false
}

// CircuitState returns the breaker state of a strategy.
func (r *Recorder) CircuitState(strategyID string) domain.CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[strategyID]
	if !ok {
		return domain.CircuitState{}
	}
	return st.circuit
}

func (r *Recorder) appendLocal(entry domain.BudgetHistoryEntry, journal bool) {
	r.mu.Lock()
	st := r.state(entry.StrategyID)
	st.ring = append(st.ring, entry)
	if over := len(st.ring) - r.historyCap; over > 0 {
		st.ring = append(st.ring[:0:0], st.ring[over:]...)
	}
	r.mu.Unlock()

	if journal && r.journal != nil {
		if err := r.journal.Append(entry); err != nil {
			r.l.Warn("journal ledger entry", zap.String("id", entry.ID), zap.Error(err))
		}
	}
}

// Restore rebuilds the local rings from the journal.
func (r *Recorder) Restore() error {
	if r.journal == nil {
		return nil
	}
	n := 0
	err := r.journal.Replay(func(e domain.BudgetHistoryEntry) {
		r.appendLocal(e, false)
		n++
	})
	r.l.Info("ledger history restored", zap.Int("entries", n))
	return err
}

func (r *Recorder) sweepGuards() {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, st := range r.keys {
		if st.guarded && now.Sub(st.guardedAt) > r.guardTTL {
			st.guarded = false
			r.l.Warn("cleared stale ledger guard", zap.String("strategy", key))
		}
	}
}

func (r *Recorder) isDemo() bool {
	return r.modes != nil && r.modes.Mode().IsDemo()
}

func (r *Recorder) storeUsable(strategyID string) bool {
	if r.store == nil || r.isDemo() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.circuitOpenLocked(strategyID, r.state(strategyID))
}

func (r *Recorder) state(key string) *keyState {
	st, ok := r.keys[key]
	if !ok {
		st = &keyState{}
		r.keys[key] = st
	}
	return st
}

func (r *Recorder) newID(at time.Time) string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), r.entropy)
	if err != nil {
		r.l.Warn("ledger id timestamp out of range, using clock", zap.Time("at", at), zap.Error(err))
		id = ulid.MustNew(ulid.Timestamp(r.clock.Now()), r.entropy)
	}
	return id.String()
}
