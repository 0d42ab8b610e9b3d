package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
)

func profit(v int64) domain.BudgetHistoryEntry {
	return domain.BudgetHistoryEntry{StrategyID: "S1", ChangeType: domain.ChangeProfit, ChangeAmount: decimal.NewFromInt(v)}
}

func allocation() domain.BudgetHistoryEntry {
	return domain.BudgetHistoryEntry{StrategyID: "S1", ChangeType: domain.ChangeTradeAllocation, ChangeAmount: decimal.NewFromInt(-10)}
}

func TestWinRate(t *testing.T) {
	tests := []struct {
		name    string
		entries []domain.BudgetHistoryEntry
		want    string
	}{
		{name: "no trades", want: "0"},
		{name: "allocations only", entries: []domain.BudgetHistoryEntry{allocation()}, want: "0"},
		{name: "all wins", entries: []domain.BudgetHistoryEntry{profit(1), profit(2)}, want: "100"},
		{name: "one in three", entries: []domain.BudgetHistoryEntry{profit(1), profit(-2), profit(-3), allocation()}, want: "33.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(WinRate(tt.entries)), "got %s", WinRate(tt.entries))
		})
	}
}

func TestProfitFactor(t *testing.T) {
	got, err := ProfitFactor([]domain.BudgetHistoryEntry{profit(30), profit(10), profit(-20), allocation()})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(got))

	_, err = ProfitFactor([]domain.BudgetHistoryEntry{profit(30)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSummarize(t *testing.T) {
	p := Summarize([]domain.BudgetHistoryEntry{allocation(), allocation(), profit(30), profit(-10)})
	assert.Equal(t, 2, p.Trades)
	assert.Equal(t, 2, p.ClosedTrades)
	assert.True(t, decimal.NewFromInt(20).Equal(p.TotalPnL))
	assert.True(t, decimal.NewFromInt(50).Equal(p.WinRate))
}

func TestUnrecoverableMetrics(t *testing.T) {
	entries := []domain.BudgetHistoryEntry{profit(1)}
	for name, fn := range map[string]func([]domain.BudgetHistoryEntry) (decimal.Decimal, error){
		"risk score":   RiskScore,
		"volatility":   Volatility,
		"sharpe ratio": SharpeRatio,
		"beta":         Beta,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fn(entries)
			assert.ErrorIs(t, err, domain.ErrNotImplemented)
		})
	}
}
