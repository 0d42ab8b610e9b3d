// Package budget checks strategy budgets against the exchange balance and
// raises alerts on low funds and large profit or loss.
package budget

import (
	"context"
	"strings"
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
)

const (
	defaultCacheTTL = 60 * time.Second
	quoteCurrency   = "USDT"
)

// SessionProvider exposes the active session.
type SessionProvider interface {
	Active() (domain.ExchangeSession, connector.Connector)
}

type cachedResult struct {
	at        time.Time
	valid     bool
	available decimal.Decimal
}

// Validator checks that a budget fits into the free quote balance of the spot wallet.
type Validator struct {
	l          *zap.Logger
	clock      clockwork.Clock
	sessions   SessionProvider
	dispatcher *dispatcher.Dispatcher
	bus        *events.Bus
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]cachedResult
}

func NewValidator(l *zap.Logger, clock clockwork.Clock, sessions SessionProvider, d *dispatcher.Dispatcher, bus *events.Bus) *Validator {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Validator{
		l:          l,
		clock:      clock,
		sessions:   sessions,
		dispatcher: d,
		bus:        bus,
		ttl:        defaultCacheTTL,
		cache:      make(map[string]cachedResult),
	}
}

// Validate reports whether budget.Total is covered by the free USDT balance.
// Demo sessions are always valid. Results are cached per strategy; a failed
// balance fetch is cached as invalid.
func (v *Validator) Validate(ctx context.Context, strategyID string, budget domain.StrategyBudget) (bool, error) {
	if strings.TrimSpace(strategyID) == "" {
		return false, domain.Errorf(domain.ErrValidation, "strategy id is required")
	}
	sess, conn := v.sessions.Active()
	if conn == nil || sess.Mode.IsDemo() {
		return true, nil
	}

	now := v.clock.Now()
	v.mu.Lock()
	cached, ok := v.cache[strategyID]
	v.mu.Unlock()
	if ok && now.Sub(cached.at) < v.ttl {
		return cached.valid, nil
	}

	available, err := v.freeQuote(ctx, conn)
	if err != nil {
		v.l.Error("budget validation failed", zap.String("strategy", strategyID), zap.Error(err))
		v.remember(strategyID, cachedResult{at: now, valid: false})
		v.publishValidated(events.BudgetValidated{
			StrategyID: strategyID,
			Valid:      false,
			Reason:     err.Error(),
			Requested:  budget.Total,
		})
		return false, nil
	}

	valid := budget.Total.LessThanOrEqual(available)
	v.remember(strategyID, cachedResult{at: now, valid: valid, available: available})

	result := events.BudgetValidated{
		StrategyID: strategyID,
		Valid:      valid,
		Requested:  budget.Total,
		Available:  available,
	}
	if valid {
		v.l.Info("budget validated", zap.String("strategy", strategyID),
			zap.String("total", budget.Total.String()), zap.String("available", available.String()))
	} else {
		result.Reason = "budget " + budget.Total.String() + " exceeds available balance " + available.String()
		v.l.Warn("budget exceeds available balance", zap.String("strategy", strategyID),
			zap.String("total", budget.Total.String()), zap.String("available", available.String()))
	}
	v.publishValidated(result)
	if !valid && v.bus != nil {
		err := v.bus.BudgetAlert.Publish(events.BudgetAlert{
			StrategyID: strategyID,
			Kind:       events.AlertValidationFailed,
			Severity:   events.SeverityError,
			Message:    result.Reason,
			Value:      budget.Total,
		})
		if err != nil {
			v.l.Error("publish budget alert", zap.Error(err))
		}
	}
	return valid, nil
}

// Invalidate drops the cached result so the next Validate re-checks.
func (v *Validator) Invalidate(strategyID string) {
	v.mu.Lock()
	delete(v.cache, strategyID)
	v.mu.Unlock()
}

func (v *Validator) freeQuote(ctx context.Context, conn connector.Connector) (decimal.Decimal, error) {
	wallet, err := dispatcher.Do(ctx, v.dispatcher, "fetchBalance:spot", func(ctx context.Context) (domain.WalletBalance, error) {
		return conn.FetchBalance(ctx, domain.AccountSpot)
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "fetch spot balance")
	}
	for _, a := range wallet.Assets {
		if strings.EqualFold(a.Asset, quoteCurrency) {
			return a.Free, nil
		}
	}
	return decimal.Zero, nil
}

func (v *Validator) remember(strategyID string, r cachedResult) {
	v.mu.Lock()
	v.cache[strategyID] = r
	v.mu.Unlock()
}

func (v *Validator) publishValidated(e events.BudgetValidated) {
	if v.bus == nil {
		return
	}
	if err := v.bus.BudgetValidated.Publish(e); err != nil {
		v.l.Error("publish budget validation", zap.Error(err))
	}
}
