package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"go.uber.org/zap"
)

const suppressWindow = time.Hour

var (
	lowFundsRatio      = decimal.NewFromFloat(0.2)
	criticalFundsRatio = decimal.NewFromFloat(0.1)
	pnlThreshold       = decimal.NewFromInt(100)
)

type raised struct {
	alert events.BudgetAlert
	at    time.Time
}

// Alerts raises budget alerts. An alert with the same kind and severity for
// the same strategy is suppressed for an hour.
type Alerts struct {
	l     *zap.Logger
	clock clockwork.Clock
	bus   *events.Bus

	mu     sync.Mutex
	recent map[string][]raised
}

func NewAlerts(l *zap.Logger, clock clockwork.Clock, bus *events.Bus) *Alerts {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Alerts{l: l, clock: clock, bus: bus, recent: make(map[string][]raised)}
}

// Check evaluates the budget and the profit or loss and returns the alerts
// actually raised.
func (a *Alerts) Check(strategyID string, budget domain.StrategyBudget, pnl decimal.Decimal) []events.BudgetAlert {
	var out []events.BudgetAlert
	if alert, ok := lowFunds(strategyID, budget); ok && a.raise(alert) {
		out = append(out, alert)
	}
	if alert, ok := profitLoss(strategyID, pnl); ok && a.raise(alert) {
		out = append(out, alert)
	}
	return out
}

// Recent lists the alerts raised for the strategy within the suppression window.
func (a *Alerts) Recent(strategyID string) []events.BudgetAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked(strategyID)
	out := make([]events.BudgetAlert, 0, len(a.recent[strategyID]))
	for _, r := range a.recent[strategyID] {
		out = append(out, r.alert)
	}
	return out
}

func lowFunds(strategyID string, b domain.StrategyBudget) (events.BudgetAlert, bool) {
	if !b.Total.IsPositive() {
		return events.BudgetAlert{}, false
	}
	ratio := b.Available.Div(b.Total)
	pct := ratio.Mul(decimal.NewFromInt(100)).StringFixed(1)

	alert := events.BudgetAlert{StrategyID: strategyID, Kind: events.AlertLowFunds, Value: b.Available}
	switch {
	case ratio.LessThan(criticalFundsRatio):
		alert.Severity = events.SeverityError
		alert.Message = fmt.Sprintf("critical: only %s%% of budget available (%s)", pct, b.Available.StringFixed(2))
	case ratio.LessThan(lowFundsRatio):
		alert.Severity = events.SeverityWarning
		alert.Message = fmt.Sprintf("low funds: only %s%% of budget available (%s)", pct, b.Available.StringFixed(2))
	default:
		return events.BudgetAlert{}, false
	}
	return alert, true
}

func profitLoss(strategyID string, pnl decimal.Decimal) (events.BudgetAlert, bool) {
	if !pnl.Abs().GreaterThan(pnlThreshold) {
		return events.BudgetAlert{}, false
	}
	alert := events.BudgetAlert{StrategyID: strategyID, Kind: events.AlertProfitLoss, Value: pnl}
	if pnl.IsPositive() {
		alert.Severity = events.SeverityInfo
		alert.Message = "trade closed with profit of " + pnl.StringFixed(2)
	} else {
		alert.Severity = events.SeverityWarning
		alert.Message = "trade closed with loss of " + pnl.Abs().StringFixed(2)
	}
	return alert, true
}

func (a *Alerts) raise(alert events.BudgetAlert) bool {
	now := a.clock.Now()

	a.mu.Lock()
	a.pruneLocked(alert.StrategyID)
	for _, r := range a.recent[alert.StrategyID] {
		if r.alert.Kind == alert.Kind && r.alert.Severity == alert.Severity {
			a.mu.Unlock()
			return false
		}
	}
	a.recent[alert.StrategyID] = append(a.recent[alert.StrategyID], raised{alert: alert, at: now})
	a.mu.Unlock()

	fields := []zap.Field{
		zap.String("strategy", alert.StrategyID),
		zap.String("kind", string(alert.Kind)),
		zap.String("message", alert.Message),
	}
	switch alert.Severity {
	case events.SeverityError:
		a.l.Error("budget alert", fields...)
	case events.SeverityWarning:
		a.l.Warn("budget alert", fields...)
	default:
		a.l.Info("budget alert", fields...)
	}

	if a.bus != nil {
		if err := a.bus.BudgetAlert.Publish(alert); err != nil {
			a.l.Error("publish budget alert", zap.Error(err))
		}
	}
	return true
}

func (a *Alerts) pruneLocked(strategyID string) {
	cutoff := a.clock.Now().Add(-suppressWindow)
	kept := a.recent[strategyID][:0]
	for _, r := range a.recent[strategyID] {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(a.recent, strategyID)
		return
	}
	a.recent[strategyID] = kept
}
