package events

import "github.com/jonboulle/clockwork"

const defaultBuffer = 256

// Bus groups the topics exchanged between the gateway services.
type Bus struct {
	TradeCreated       *Broadcaster[TradeCreated]
	TradeClosed        *Broadcaster[TradeClosed]
	BudgetUpdated      *Broadcaster[BudgetUpdated]
	HistoryUpdated     *Broadcaster[HistoryUpdated]
	BudgetValidated    *Broadcaster[BudgetValidated]
	BudgetAlert        *Broadcaster[BudgetAlert]
	HealthUpdate       *Broadcaster[HealthUpdate]
	BalancesUpdated    *Broadcaster[BalancesUpdated]
	SessionInitialized *Broadcaster[SessionInitialized]
}

// NewBus creates all topics with the same per-subscriber buffer.
func NewBus(buffer int, clock clockwork.Clock) *Bus {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Bus{
		TradeCreated:       NewBroadcaster[TradeCreated](buffer, clock),
		TradeClosed:        NewBroadcaster[TradeClosed](buffer, clock),
		BudgetUpdated:      NewBroadcaster[BudgetUpdated](buffer, clock),
		HistoryUpdated:     NewBroadcaster[HistoryUpdated](buffer, clock),
		BudgetValidated:    NewBroadcaster[BudgetValidated](buffer, clock),
		BudgetAlert:        NewBroadcaster[BudgetAlert](buffer, clock),
		HealthUpdate:       NewBroadcaster[HealthUpdate](buffer, clock),
		BalancesUpdated:    NewBroadcaster[BalancesUpdated](buffer, clock),
		SessionInitialized: NewBroadcaster[SessionInitialized](buffer, clock),
	}
}
