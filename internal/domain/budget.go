package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType kind of budget state transition.
type ChangeType string

const (
	ChangeInitial         ChangeType = "initial"
	ChangeTradeAllocation ChangeType = "trade_allocation"
	ChangeTradeRelease    ChangeType = "trade_release"
	ChangeAdjustment      ChangeType = "adjustment"
	ChangeProfit          ChangeType = "profit"
)

// IsValid checks if the ChangeType value is valid.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeInitial, ChangeTradeAllocation, ChangeTradeRelease, ChangeAdjustment, ChangeProfit:
		return true
	}
	return false
}

// StrategyBudget current budget of a strategy.
type StrategyBudget struct {
	StrategyID string          `json:"strategy_id"`
	Total      decimal.Decimal `json:"total"`
	Allocated  decimal.Decimal `json:"allocated"`
	Available  decimal.Decimal `json:"available"`
	MaxPosSize decimal.Decimal `json:"max_position_size"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Validate checks the budget figures.
func (b StrategyBudget) Validate() error {
	if strings.TrimSpace(b.StrategyID) == "" {
		return Errorf(ErrValidation, "strategy id is required")
	}
	if b.Total.IsNegative() || b.Allocated.IsNegative() || b.Available.IsNegative() {
		return Errorf(ErrValidation, "budget figures must not be negative")
	}
	if b.Allocated.GreaterThan(b.Total) {
		return Errorf(ErrValidation, "allocated %s exceeds total %s", b.Allocated, b.Total)
	}
	return nil
}

// BudgetHistoryEntry one append-only ledger record.
type BudgetHistoryEntry struct {
	ID           string          `json:"id"`
	StrategyID   string          `json:"strategy_id"`
	Total        decimal.Decimal `json:"total"`
	Allocated    decimal.Decimal `json:"allocated"`
	Available    decimal.Decimal `json:"available"`
	Profit       decimal.Decimal `json:"profit"`
	ChangeType   ChangeType      `json:"change_type"`
	ChangeAmount decimal.Decimal `json:"change_amount"`
	TradeID      string          `json:"trade_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Entry timestamps must fit a 48-bit millisecond unix time.
var (
	minEntryTime = time.UnixMilli(0)
	maxEntryTime = time.UnixMilli(1<<48 - 1)
)

// Validate checks required fields.
func (e BudgetHistoryEntry) Validate() error {
	if strings.TrimSpace(e.StrategyID) == "" {
		return Errorf(ErrValidation, "strategy id is required")
	}
	if !e.ChangeType.IsValid() {
		return Errorf(ErrValidation, "invalid change type %q", e.ChangeType)
	}
	if !e.Timestamp.IsZero() && (e.Timestamp.Before(minEntryTime) || e.Timestamp.After(maxEntryTime)) {
		return Errorf(ErrValidation, "timestamp %s out of range", e.Timestamp.UTC().Format(time.RFC3339))
	}
	return nil
}

// DailyAggregate ledger summary for one calendar day.
type DailyAggregate struct {
	Date      string          `json:"date"`
	Total     decimal.Decimal `json:"total"`
	Allocated decimal.Decimal `json:"allocated"`
	Available decimal.Decimal `json:"available"`
	Profit    decimal.Decimal `json:"profit"`
	Trades    int             `json:"trades"`
}

// CircuitState breaker state of one strategy key.
type CircuitState struct {
	ErrorCount    int       `json:"error_count"`
	Broken        bool      `json:"broken"`
	LastFailure   time.Time `json:"last_failure"`
	ResetDeadline time.Time `json:"reset_deadline"`
}
