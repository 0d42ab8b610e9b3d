package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "exgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Budgets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertStrategy(ctx, "S1", "grid", at))
	require.NoError(t, s.UpsertStrategy(ctx, "S1", "grid-v2", at.Add(time.Hour)))

	_, found, err := s.GetBudget(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, found)

	b := domain.StrategyBudget{
		StrategyID: "S1",
		Total:      decimal.NewFromInt(1000),
		Allocated:  decimal.RequireFromString("250.5"),
		Available:  decimal.RequireFromString("749.5"),
		MaxPosSize: decimal.NewFromInt(100),
		UpdatedAt:  at,
	}
	require.NoError(t, s.UpsertBudget(ctx, b))

	b.Allocated = decimal.NewFromInt(300)
	b.Available = decimal.NewFromInt(700)
	require.NoError(t, s.UpsertBudget(ctx, b))

	got, found, err := s.GetBudget(ctx, "S1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Total.Equal(b.Total))
	assert.True(t, got.Allocated.Equal(decimal.NewFromInt(300)))
	assert.True(t, got.Available.Equal(decimal.NewFromInt(700)))
	assert.True(t, got.UpdatedAt.Equal(at))

	err = s.UpsertBudget(ctx, domain.StrategyBudget{StrategyID: "S2", Total: decimal.NewFromInt(1), Allocated: decimal.NewFromInt(2)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_History(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertHistory(ctx, domain.BudgetHistoryEntry{
			ID:           fmt.Sprintf("e%d", i),
			StrategyID:   "S1",
			Total:        decimal.NewFromInt(1000),
			Allocated:    decimal.NewFromInt(int64(i * 10)),
			Available:    decimal.NewFromInt(int64(1000 - i*10)),
			ChangeType:   domain.ChangeTradeAllocation,
			ChangeAmount: decimal.NewFromInt(-10),
			TradeID:      fmt.Sprintf("t%d", i),
			Timestamp:    base.Add(time.Duration(i) * 12 * time.Hour),
		}))
	}
	require.NoError(t, s.InsertHistory(ctx, domain.BudgetHistoryEntry{
		ID: "other", StrategyID: "S2", ChangeType: domain.ChangeInitial, Timestamp: base,
	}))

	err := s.InsertHistory(ctx, domain.BudgetHistoryEntry{ID: "e0", StrategyID: "S1", ChangeType: domain.ChangeProfit, Timestamp: base})
	assert.Error(t, err, "entries are immutable")

	latest, err := s.ListHistory(ctx, "S1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "e4", latest[0].ID)
	assert.Equal(t, "e3", latest[1].ID)
	assert.Equal(t, "t4", latest[0].TradeID)
	assert.True(t, latest[0].ChangeAmount.Equal(decimal.NewFromInt(-10)))

	since, err := s.ListHistorySince(ctx, "S1", base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, since, 3)
	assert.Equal(t, "e2", since[0].ID)
	assert.Equal(t, "e4", since[2].ID)
	assert.True(t, since[0].Timestamp.Equal(base.Add(24*time.Hour)))
}

func TestStore_UserExchanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertUserExchange(ctx, "binance", true, at))
	require.NoError(t, s.UpsertUserExchange(ctx, "bybit", true, at.Add(time.Minute)))

	list, err := s.ListUserExchanges(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "binance", list[0].ExchangeID)
	assert.False(t, list[0].Active)
	assert.True(t, list[1].Active)

	require.NoError(t, s.DeleteUserExchange(ctx, "binance"))
	list, err = s.ListUserExchanges(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bybit", list[0].ExchangeID)
}
