package ledger

import (
	"context"
	"time"

	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"go.uber.org/zap"
)

// Run records trade and budget events until ctx is done. Stale guards are
// swept periodically and pending debounced entries are flushed on exit.
func (r *Recorder) Run(ctx context.Context) error {
	created := r.bus.TradeCreated.Subscribe()
	defer r.bus.TradeCreated.Unsubscribe(created)
	closed := r.bus.TradeClosed.Subscribe()
	defer r.bus.TradeClosed.Unsubscribe(closed)
	updated := r.bus.BudgetUpdated.Subscribe()
	defer r.bus.BudgetUpdated.Unsubscribe(updated)

	sweep := r.clock.NewTicker(r.guardTTL)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flushPending()
			return nil
		case ev := <-created:
			r.onTradeCreated(ev.Payload)
		case ev := <-closed:
			r.onTradeClosed(ev.Payload)
		case ev := <-updated:
			r.onBudgetUpdated(ev.Payload)
		case <-sweep.Chan():
			r.sweepGuards()
		}
	}
}

func (r *Recorder) onTradeCreated(e events.TradeCreated) {
	r.RecordChange(domain.BudgetHistoryEntry{
		StrategyID:   e.StrategyID,
		ChangeType:   domain.ChangeTradeAllocation,
		ChangeAmount: e.Cost().Neg(),
		TradeID:      e.TradeID,
	})
}

func (r *Recorder) onTradeClosed(e events.TradeClosed) {
	now := r.clock.Now()
	r.RecordChange(domain.BudgetHistoryEntry{
		StrategyID:   e.StrategyID,
		Profit:       e.Profit,
		ChangeType:   domain.ChangeTradeRelease,
		ChangeAmount: e.Released(),
		TradeID:      e.TradeID,
		Timestamp:    now,
	})
	if e.Profit.IsZero() {
		return
	}
	// orders after the release entry
	r.RecordChange(domain.BudgetHistoryEntry{
		StrategyID:   e.StrategyID,
		Profit:       e.Profit,
		ChangeType:   domain.ChangeProfit,
		ChangeAmount: e.Profit,
		TradeID:      e.TradeID,
		Timestamp:    now.Add(time.Millisecond),
	})
}

func (r *Recorder) onBudgetUpdated(e events.BudgetUpdated) {
	if e.InitialSetup {
		return
	}
	changeType := e.ChangeType
	if changeType == "" {
		changeType = domain.ChangeAdjustment
	}
	r.RecordChange(domain.BudgetHistoryEntry{
		StrategyID:   e.StrategyID,
		Total:        e.Budget.Total,
		Allocated:    e.Budget.Allocated,
		Available:    e.Budget.Available,
		Profit:       e.PnL,
		ChangeType:   changeType,
		ChangeAmount: e.ChangeAmount,
		TradeID:      e.TradeID,
	})
}

// flushPending processes every debounced entry right away.
func (r *Recorder) flushPending() {
	r.mu.Lock()
	var pending []domain.BudgetHistoryEntry
	for _, st := range r.keys {
		if st.pending == nil || st.guarded {
			continue
		}
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.gen++
		pending = append(pending, *st.pending)
		st.pending = nil
		st.guarded = true
		st.guardedAt = r.clock.Now()
	}
	r.mu.Unlock()

	for _, e := range pending {
		r.process(e)
	}
	if len(pending) > 0 {
		r.l.Info("flushed pending ledger entries", zap.Int("entries", len(pending)))
	}
}
