package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"go.uber.org/zap"
)

func TestAggregateByDay(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }
	entry := func(at time.Time, change domain.ChangeType, amount, total int64) domain.BudgetHistoryEntry {
		return domain.BudgetHistoryEntry{
			StrategyID:   "S1",
			Timestamp:    at,
			ChangeType:   change,
			ChangeAmount: decimal.NewFromInt(amount),
			Total:        decimal.NewFromInt(total),
		}
	}

	tests := []struct {
		name    string
		entries []domain.BudgetHistoryEntry
		want    []domain.DailyAggregate
	}{
		{name: "empty", entries: nil, want: []domain.DailyAggregate{}},
		{
			name: "three days out of order",
			entries: []domain.BudgetHistoryEntry{
				entry(day(3, 9), domain.ChangeProfit, 20, 1020),
				entry(day(1, 9), domain.ChangeTradeAllocation, -100, 1000),
				entry(day(1, 18), domain.ChangeProfit, 15, 1015),
				entry(day(2, 1), domain.ChangeTradeAllocation, -50, 1015),
				entry(day(1, 10), domain.ChangeTradeAllocation, -100, 1000),
				entry(day(3, 10), domain.ChangeProfit, -5, 1015),
			},
			want: []domain.DailyAggregate{
				{Date: "2024-03-01", Total: decimal.NewFromInt(1015), Profit: decimal.NewFromInt(15), Trades: 2},
				{Date: "2024-03-02", Total: decimal.NewFromInt(1015), Trades: 1},
				{Date: "2024-03-03", Total: decimal.NewFromInt(1015), Profit: decimal.NewFromInt(15)},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aggregateByDay(tt.entries)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Date, got[i].Date)
				assert.True(t, tt.want[i].Total.Equal(got[i].Total), "total of %s", got[i].Date)
				assert.True(t, tt.want[i].Profit.Equal(got[i].Profit), "profit of %s", got[i].Date)
				assert.Equal(t, tt.want[i].Trades, got[i].Trades)
			}
		})
	}
}

func TestRecorder_HistorySummary(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	r := NewRecorder(zap.NewNop(), clock, nil, WithTiming(0, time.Second))

	r.RecordChange(adjustment("S1", 1))
	clock.Advance(40 * 24 * time.Hour)
	for _, gap := range []time.Duration{0, time.Hour, 24 * time.Hour, 48 * time.Hour} {
		clock.Advance(gap)
		r.RecordChange(adjustment("S1", 2))
	}

	summary, err := r.GetHistorySummary(context.Background(), "S1", 30)
	require.NoError(t, err)
	require.Len(t, summary, 3, "entries older than the range are excluded")
	for i := 1; i < len(summary); i++ {
		assert.Less(t, summary[i-1].Date, summary[i].Date)
	}

	_, err = r.GetHistorySummary(context.Background(), "", 30)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecorder_RunRecordsTradeEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := events.NewBus(16, clock)
	r := NewRecorder(zap.NewNop(), clock, bus, WithTiming(0, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	require.NoError(t, bus.TradeCreated.Publish(events.TradeCreated{
		TradeID: "t1", StrategyID: "S1", Symbol: "BTC/USDT", Side: domain.SideBuy,
		Amount: decimal.NewFromFloat(0.5), Price: decimal.NewFromInt(100),
	}))
	assert.Eventually(t, func() bool {
		h, _ := r.GetHistory(ctx, "S1", 0)
		return len(h) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.TradeClosed.Publish(events.TradeClosed{
		TradeID: "t1", StrategyID: "S1", Symbol: "BTC/USDT",
		Amount: decimal.NewFromFloat(0.5), EntryPrice: decimal.NewFromInt(100),
		ExitPrice: decimal.NewFromInt(120), Profit: decimal.NewFromInt(10),
	}))
	require.NoError(t, bus.BudgetUpdated.Publish(events.BudgetUpdated{
		StrategyID: "S1",
		Budget:     domain.StrategyBudget{StrategyID: "S1", Total: decimal.NewFromInt(1010)},
	}))

	var history []domain.BudgetHistoryEntry
	assert.Eventually(t, func() bool {
		history, _ = r.GetHistory(ctx, "S1", 0)
		return len(history) == 4
	}, time.Second, 5*time.Millisecond)

	byType := map[domain.ChangeType]domain.BudgetHistoryEntry{}
	for _, e := range history {
		byType[e.ChangeType] = e
	}
	assert.True(t, decimal.NewFromInt(-50).Equal(byType[domain.ChangeTradeAllocation].ChangeAmount))
	assert.True(t, decimal.NewFromInt(50).Equal(byType[domain.ChangeTradeRelease].ChangeAmount))
	assert.True(t, decimal.NewFromInt(10).Equal(byType[domain.ChangeProfit].ChangeAmount))
	assert.True(t, byType[domain.ChangeProfit].Timestamp.After(byType[domain.ChangeTradeRelease].Timestamp))
	assert.True(t, decimal.NewFromInt(1010).Equal(byType[domain.ChangeAdjustment].Total))

	cancel()
	require.NoError(t, <-done)
}

func TestRecorder_RunBudgetUpdateFields(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := events.NewBus(16, clock)
	r := NewRecorder(zap.NewNop(), clock, bus, WithTiming(0, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	require.NoError(t, bus.BudgetUpdated.Publish(events.BudgetUpdated{
		StrategyID:   "S1",
		Budget:       domain.StrategyBudget{StrategyID: "S1", Total: decimal.NewFromInt(1000)},
		InitialSetup: true,
	}))
	require.NoError(t, bus.BudgetUpdated.Publish(events.BudgetUpdated{
		StrategyID:   "S1",
		Budget:       domain.StrategyBudget{StrategyID: "S1", Total: decimal.NewFromInt(1000), Allocated: decimal.NewFromInt(25)},
		ChangeType:   domain.ChangeTradeAllocation,
		ChangeAmount: decimal.NewFromInt(-25),
		TradeID:      "t7",
	}))

	var history []domain.BudgetHistoryEntry
	assert.Eventually(t, func() bool {
		history, _ = r.GetHistory(ctx, "S1", 0)
		return len(history) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		h, _ := r.GetHistory(ctx, "S1", 0)
		return len(h) > 1
	}, 50*time.Millisecond, 5*time.Millisecond, "initial setup updates are not recorded")

	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTradeAllocation, history[0].ChangeType)
	assert.True(t, decimal.NewFromInt(-25).Equal(history[0].ChangeAmount))
	assert.Equal(t, "t7", history[0].TradeID)

	err := bus.BudgetUpdated.Publish(events.BudgetUpdated{StrategyID: "S1", ChangeType: "bonus"})
	assert.Error(t, err)

	cancel()
	require.NoError(t, <-done)
}

func TestRecorder_RunFlushesPendingOnExit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := events.NewBus(16, clock)
	store := &fakeStore{}
	r := NewRecorder(zap.NewNop(), clock, bus, WithStore(store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.RecordChange(adjustment("S1", 1))
	r.RecordChange(adjustment("S1", 2))
	_, rows := store.snapshot()
	require.Len(t, rows, 1)

	cancel()
	require.NoError(t, <-done)
	_, rows = store.snapshot()
	require.Len(t, rows, 2)
	assert.True(t, decimal.NewFromInt(2).Equal(rows[1].ChangeAmount))
}
