package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Pair
		wantErr bool
	}{
		{name: "slash", in: "btc/usdt", want: Pair{From: "BTC", To: "USDT"}},
		{name: "underscore", in: "ETH_USDC", want: Pair{From: "ETH", To: "USDC"}},
		{name: "dash", in: "SOL-USD", want: Pair{From: "SOL", To: "USD"}},
		{name: "concatenated", in: "DOGEUSDT", want: Pair{From: "DOGE", To: "USDT"}},
		{name: "empty side", in: "/USDT", wantErr: true},
		{name: "unknown quote", in: "BTCEUR", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePair(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.From+"/"+tt.want.To, got.String())
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("connection reset")
	err := errors.Wrap(NewError(ErrNetwork, cause), "fetch ticker")

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))
	assert.Equal(t, ErrNetwork, KindOf(err))

	assert.True(t, IsTransient(NewError(ErrRateLimitExceeded, cause)))
	assert.False(t, IsTransient(NewError(ErrAuthentication, cause)))
	assert.Nil(t, KindOf(cause))
	assert.Equal(t, ErrTimeout, NewError(ErrTimeout, nil))
}

func TestMultiWalletBalance_WithRecomputesTotal(t *testing.T) {
	var m MultiWalletBalance
	stale := AccountBalance{
		Free:     decimal.NewFromInt(70),
		Used:     decimal.NewFromInt(30),
		Total:    decimal.NewFromInt(1),
		Currency: "USDT",
	}

	m = m.With(AccountMargin, stale)

	assert.True(t, m.Margin.Total.Equal(decimal.NewFromInt(100)))
	assert.True(t, m.Margin.Consistent())
	assert.True(t, m.Get(AccountSpot).Total.IsZero())
}

func TestCapabilities_AccountTypes(t *testing.T) {
	caps := Capabilities{Futures: true}

	assert.Equal(t, []AccountType{AccountSpot, AccountFutures}, caps.AccountTypes())
	assert.True(t, caps.Supports(AccountSpot))
	assert.False(t, caps.Supports(AccountMargin))
}

func TestStrategyBudget_Validate(t *testing.T) {
	ok := StrategyBudget{StrategyID: "S1", Total: decimal.NewFromInt(100), Allocated: decimal.NewFromInt(40), Available: decimal.NewFromInt(60)}
	require.NoError(t, ok.Validate())

	over := ok
	over.Allocated = decimal.NewFromInt(101)
	assert.ErrorIs(t, over.Validate(), ErrValidation)

	assert.ErrorIs(t, StrategyBudget{}.Validate(), ErrValidation)
}

func TestBudgetHistoryEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   BudgetHistoryEntry
		wantErr bool
	}{
		{name: "valid", entry: BudgetHistoryEntry{StrategyID: "S1", ChangeType: ChangeAdjustment, Timestamp: time.Now()}},
		{name: "zero timestamp", entry: BudgetHistoryEntry{StrategyID: "S1", ChangeType: ChangeProfit}},
		{name: "no strategy", entry: BudgetHistoryEntry{ChangeType: ChangeProfit}, wantErr: true},
		{name: "unknown change type", entry: BudgetHistoryEntry{StrategyID: "S1", ChangeType: "bonus"}, wantErr: true},
		{
			name:    "before unix epoch",
			entry:   BudgetHistoryEntry{StrategyID: "S1", ChangeType: ChangeAdjustment, Timestamp: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)},
			wantErr: true,
		},
		{
			name:    "beyond 48-bit millis",
			entry:   BudgetHistoryEntry{StrategyID: "S1", ChangeType: ChangeAdjustment, Timestamp: time.Date(10900, 1, 1, 0, 0, 0, 0, time.UTC)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}
