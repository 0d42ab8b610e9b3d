package events

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
)

func TestBroadcaster_PublishValidatesPayload(t *testing.T) {
	b := NewBroadcaster[TradeCreated](4, clockwork.NewFakeClock())
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	err := b.Publish(TradeCreated{StrategyID: "S1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, ch, 0)

	err = b.Publish(TradeCreated{
		TradeID:    "T1",
		StrategyID: "S1",
		Amount:     decimal.NewFromInt(2),
		Price:      decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, TopicTradeCreated, ev.Topic)
		assert.NotEmpty(t, ev.ID)
		assert.True(t, ev.Payload.Cost().Equal(decimal.NewFromInt(100)))
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBroadcaster_DropsSlowConsumer(t *testing.T) {
	b := NewBroadcaster[HealthUpdate](1, clockwork.NewFakeClock())
	slow := b.Subscribe()

	status := domain.HealthStatus{State: domain.HealthHealthy, OK: true}
	require.NoError(t, b.Publish(HealthUpdate{Previous: domain.HealthUnknown, Status: status}))
	require.NoError(t, b.Publish(HealthUpdate{Previous: domain.HealthUnknown, Status: status}))

	assert.Len(t, slow, 1)
	assert.Equal(t, uint64(1), b.Dropped())

	b.Unsubscribe(slow)
	_, open := <-slow
	assert.True(t, open)
	_, open = <-slow
	assert.False(t, open)
}

func TestPayloadValidation(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	consistent := domain.NewAccountBalance(decimal.NewFromInt(10), decimal.NewFromInt(5), "USDT")

	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{name: "alert ok", payload: BudgetAlert{StrategyID: "S1", Kind: AlertLowFunds, Severity: SeverityWarning}},
		{name: "alert unknown kind", payload: BudgetAlert{StrategyID: "S1", Kind: "weird", Severity: SeverityInfo}, wantErr: true},
		{name: "invalid budget without reason", payload: BudgetValidated{StrategyID: "S1"}, wantErr: true},
		{name: "health unknown", payload: HealthUpdate{Status: domain.HealthStatus{State: domain.HealthUnknown}}, wantErr: true},
		{
			name: "balances consistent",
			payload: BalancesUpdated{Balances: domain.MultiWalletBalance{
				Spot: consistent, Margin: consistent, Futures: consistent, Timestamp: now,
			}},
		},
		{
			name: "balances drifted",
			payload: BalancesUpdated{Balances: domain.MultiWalletBalance{
				Spot:      domain.AccountBalance{Free: decimal.NewFromInt(1), Total: decimal.NewFromInt(2)},
				Timestamp: now,
			}},
			wantErr: true,
		},
		{name: "session without mode", payload: SessionInitialized{Session: domain.ExchangeSession{ID: "x"}}, wantErr: true},
		{name: "budget update mismatched ids", payload: BudgetUpdated{StrategyID: "S1", Budget: domain.StrategyBudget{StrategyID: "S2"}}, wantErr: true},
		{name: "budget update unknown change type", payload: BudgetUpdated{StrategyID: "S1", ChangeType: "bonus"}, wantErr: true},
		{name: "budget update with change type", payload: BudgetUpdated{StrategyID: "S1", ChangeType: domain.ChangeProfit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
