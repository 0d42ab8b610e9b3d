package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	defaultSummaryDays  = 30
	dayLayout           = "2006-01-02"
)

// GetHistory returns the newest entries first. Rows come from the store while
// its circuit is closed and it has any; otherwise the local ring is used.
func (r *Recorder) GetHistory(ctx context.Context, strategyID string, limit int) ([]domain.BudgetHistoryEntry, error) {
	if strings.TrimSpace(strategyID) == "" {
		return nil, domain.Errorf(domain.ErrValidation, "strategy id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if r.storeUsable(strategyID) {
		rows, err := r.store.ListHistory(ctx, strategyID, limit)
		switch {
		case err != nil:
			r.l.Warn("list ledger history from store, using local history",
				zap.String("strategy", strategyID), zap.Error(err))
		case len(rows) > 0:
			return rows, nil
		}
	}

	local := r.local(strategyID)
	for i, j := 0, len(local)-1; i < j; i, j = i+1, j-1 {
		local[i], local[j] = local[j], local[i]
	}
	sort.SliceStable(local, func(i, j int) bool { return local[i].Timestamp.After(local[j].Timestamp) })
	if len(local) > limit {
		local = local[:limit]
	}
	return local, nil
}

// GetHistorySummary aggregates the last days of history per calendar day (UTC),
// ascending by date.
func (r *Recorder) GetHistorySummary(ctx context.Context, strategyID string, days int) ([]domain.DailyAggregate, error) {
	if strings.TrimSpace(strategyID) == "" {
		return nil, domain.Errorf(domain.ErrValidation, "strategy id is required")
	}
	if days <= 0 {
		days = defaultSummaryDays
	}
	now := r.clock.Now()
	since := now.AddDate(0, 0, -days)

	if r.storeUsable(strategyID) {
		rows, err := r.store.ListHistorySince(ctx, strategyID, since)
		switch {
		case err != nil:
			r.l.Warn("list ledger history from store, using local history",
				zap.String("strategy", strategyID), zap.Error(err))
		case len(rows) > 0:
			return aggregateByDay(rows), nil
		}
	}

	var inRange []domain.BudgetHistoryEntry
	for _, e := range r.local(strategyID) {
		if !e.Timestamp.Before(since) && !e.Timestamp.After(now) {
			inRange = append(inRange, e)
		}
	}
	return aggregateByDay(inRange), nil
}

// aggregateByDay carries the latest figures of each day forward, sums profit
// entries and counts trade allocations.
func aggregateByDay(entries []domain.BudgetHistoryEntry) []domain.DailyAggregate {
	sorted := append([]domain.BudgetHistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := make([]domain.DailyAggregate, 0)
	index := make(map[string]int)
	for _, e := range sorted {
		date := e.Timestamp.UTC().Format(dayLayout)
		i, ok := index[date]
		if !ok {
			i = len(out)
			index[date] = i
			out = append(out, domain.DailyAggregate{Date: date})
		}
		day := &out[i]
		day.Total = e.Total
		day.Allocated = e.Allocated
		day.Available = e.Available
		switch e.ChangeType {
		case domain.ChangeProfit:
			day.Profit = day.Profit.Add(e.ChangeAmount)
		case domain.ChangeTradeAllocation:
			day.Trades++
		}
	}
	return out
}

func (r *Recorder) local(strategyID string) []domain.BudgetHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[strategyID]
	if !ok {
		return nil
	}
	return append([]domain.BudgetHistoryEntry(nil), st.ring...)
}
