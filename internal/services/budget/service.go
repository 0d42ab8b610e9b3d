package budget

import (
	"context"

	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"go.uber.org/zap"
)

// Service feeds budget and trade events into the validator and the alerts.
type Service struct {
	l         *zap.Logger
	bus       *events.Bus
	validator *Validator
	alerts    *Alerts
}

func NewService(l *zap.Logger, bus *events.Bus, validator *Validator, alerts *Alerts) *Service {
	if l == nil {
		l = zap.NewNop()
	}
	return &Service{l: l, bus: bus, validator: validator, alerts: alerts}
}

// Run consumes events until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	updated := s.bus.BudgetUpdated.Subscribe()
	defer s.bus.BudgetUpdated.Unsubscribe(updated)
	closed := s.bus.TradeClosed.Subscribe()
	defer s.bus.TradeClosed.Unsubscribe(closed)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-updated:
			e := ev.Payload
			if e.Budget.StrategyID == "" {
				e.Budget.StrategyID = e.StrategyID
			}
			s.validator.Invalidate(e.StrategyID)
			if _, err := s.validator.Validate(ctx, e.StrategyID, e.Budget); err != nil {
				s.l.Warn("validate budget", zap.String("strategy", e.StrategyID), zap.Error(err))
			}
			s.alerts.Check(e.StrategyID, e.Budget, e.PnL)
		case ev := <-closed:
			e := ev.Payload
			s.alerts.Check(e.StrategyID, domain.StrategyBudget{}, e.Profit)
		}
	}
}
