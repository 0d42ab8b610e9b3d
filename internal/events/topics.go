package events

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
)

const (
	TopicTradeCreated       Topic = "trade:created"
	TopicTradeClosed        Topic = "trade:closed"
	TopicBudgetUpdated      Topic = "budget:updated"
	TopicHistoryUpdated     Topic = "budget:historyUpdated"
	TopicBudgetValidated    Topic = "budget:validated"
	TopicBudgetAlert        Topic = "budget:alert"
	TopicHealthUpdate       Topic = "healthUpdate"
	TopicBalancesUpdated    Topic = "balancesUpdated"
	TopicSessionInitialized Topic = "session:initialized"
)

// TradeCreated a trade was opened by a strategy.
type TradeCreated struct {
	TradeID    string           `json:"trade_id"`
	StrategyID string           `json:"strategy_id"`
	Symbol     string           `json:"symbol"`
	Side       domain.OrderSide `json:"side"`
	Amount     decimal.Decimal  `json:"amount"`
	Price      decimal.Decimal  `json:"price"`
}

func (TradeCreated) Topic() Topic { return TopicTradeCreated }

func (e TradeCreated) Validate() error {
	if err := requireIDs(e.StrategyID, e.TradeID); err != nil {
		return err
	}
	if !e.Amount.IsPositive() || e.Price.IsNegative() {
		return errors.New("trade amount must be positive and price non-negative")
	}
	return nil
}

// Cost quote value locked by the trade.
func (e TradeCreated) Cost() decimal.Decimal {
	return e.Amount.Mul(e.Price)
}

// TradeClosed a trade was closed with the given realised profit.
type TradeClosed struct {
	TradeID    string          `json:"trade_id"`
	StrategyID string          `json:"strategy_id"`
	Symbol     string          `json:"symbol"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Profit     decimal.Decimal `json:"profit"`
}

func (TradeClosed) Topic() Topic { return TopicTradeClosed }

func (e TradeClosed) Validate() error {
	if err := requireIDs(e.StrategyID, e.TradeID); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return errors.New("trade amount must be positive")
	}
	return nil
}

// Released quote value returned to the budget, excluding profit.
func (e TradeClosed) Released() decimal.Decimal {
	return e.Amount.Mul(e.EntryPrice)
}

// BudgetUpdated the budget of a strategy was changed outside of trading.
// ChangeType defaults to adjustment. Updates flagged InitialSetup are not
// recorded in the ledger.
type BudgetUpdated struct {
	StrategyID   string                `json:"strategy_id"`
	Budget       domain.StrategyBudget `json:"budget"`
	PnL          decimal.Decimal       `json:"pnl"`
	ChangeType   domain.ChangeType     `json:"change_type,omitempty"`
	ChangeAmount decimal.Decimal       `json:"change_amount"`
	TradeID      string                `json:"trade_id,omitempty"`
	InitialSetup bool                  `json:"initial_setup,omitempty"`
}

func (BudgetUpdated) Topic() Topic { return TopicBudgetUpdated }

func (e BudgetUpdated) Validate() error {
	if err := requireIDs(e.StrategyID); err != nil {
		return err
	}
	if e.Budget.StrategyID != "" && e.Budget.StrategyID != e.StrategyID {
		return errors.Errorf("budget belongs to %s, event to %s", e.Budget.StrategyID, e.StrategyID)
	}
	if e.ChangeType != "" && !e.ChangeType.IsValid() {
		return errors.Errorf("unknown change type %q", e.ChangeType)
	}
	return nil
}

// HistoryUpdated a ledger entry was recorded.
type HistoryUpdated struct {
	StrategyID string                    `json:"strategy_id"`
	Entry      domain.BudgetHistoryEntry `json:"entry"`
	LocalOnly  bool                      `json:"local_only"`
}

func (HistoryUpdated) Topic() Topic { return TopicHistoryUpdated }

func (e HistoryUpdated) Validate() error {
	if err := requireIDs(e.StrategyID); err != nil {
		return err
	}
	return e.Entry.Validate()
}

// BudgetValidated result of checking a budget against the exchange balance.
type BudgetValidated struct {
	StrategyID string          `json:"strategy_id"`
	Valid      bool            `json:"valid"`
	Reason     string          `json:"reason,omitempty"`
	Requested  decimal.Decimal `json:"requested"`
	Available  decimal.Decimal `json:"available"`
}

func (BudgetValidated) Topic() Topic { return TopicBudgetValidated }

func (e BudgetValidated) Validate() error {
	if err := requireIDs(e.StrategyID); err != nil {
		return err
	}
	if !e.Valid && e.Reason == "" {
		return errors.New("invalid budget result requires a reason")
	}
	return nil
}

// AlertKind variant tag of a budget alert.
type AlertKind string

const (
	AlertLowFunds         AlertKind = "low_funds"
	AlertProfitLoss       AlertKind = "profit_loss"
	AlertValidationFailed AlertKind = "validation_failed"
)

// Severity of a budget alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// BudgetAlert a budget condition that needs attention.
type BudgetAlert struct {
	StrategyID string          `json:"strategy_id"`
	Kind       AlertKind       `json:"kind"`
	Severity   Severity        `json:"severity"`
	Message    string          `json:"message"`
	Value      decimal.Decimal `json:"value"`
}

func (BudgetAlert) Topic() Topic { return TopicBudgetAlert }

func (e BudgetAlert) Validate() error {
	if err := requireIDs(e.StrategyID); err != nil {
		return err
	}
	switch e.Kind {
	case AlertLowFunds, AlertProfitLoss, AlertValidationFailed:
	default:
		return errors.Errorf("unknown alert kind %q", e.Kind)
	}
	switch e.Severity {
	case SeverityInfo, SeverityWarning, SeverityError:
	default:
		return errors.Errorf("unknown alert severity %q", e.Severity)
	}
	return nil
}

// HealthUpdate the health monitor changed state.
type HealthUpdate struct {
	Previous domain.HealthState  `json:"previous"`
	Status   domain.HealthStatus `json:"status"`
}

func (HealthUpdate) Topic() Topic { return TopicHealthUpdate }

func (e HealthUpdate) Validate() error {
	if e.Status.State == "" || e.Status.State == domain.HealthUnknown {
		return errors.New("health update requires a resolved state")
	}
	return nil
}

// BalanceSource where a balance snapshot came from.
type BalanceSource string

const (
	SourcePoll      BalanceSource = "poll"
	SourcePush      BalanceSource = "push"
	SourceSynthetic BalanceSource = "synthetic"
)

// BalancesUpdated a new multi-wallet snapshot is available.
type BalancesUpdated struct {
	SessionID string                    `json:"session_id"`
	Mode      domain.Mode               `json:"mode"`
	Source    BalanceSource             `json:"source"`
	Balances  domain.MultiWalletBalance `json:"balances"`
}

func (BalancesUpdated) Topic() Topic { return TopicBalancesUpdated }

func (e BalancesUpdated) Validate() error {
	for _, t := range domain.AccountTypes {
		if !e.Balances.Get(t).Consistent() {
			return errors.Errorf("%s balance total does not match free + used", t)
		}
	}
	if e.Balances.Timestamp.IsZero() {
		return errors.New("balance snapshot timestamp is required")
	}
	return nil
}

// SessionInitialized the session manager resolved a session.
type SessionInitialized struct {
	Session domain.ExchangeSession `json:"session"`
	// Fallback is set when live mode was requested but demo was resolved.
	Fallback string `json:"fallback,omitempty"`
}

func (SessionInitialized) Topic() Topic { return TopicSessionInitialized }

func (e SessionInitialized) Validate() error {
	if e.Session.ID == "" {
		return errors.New("session id is required")
	}
	if e.Session.Mode != domain.ModeLive && e.Session.Mode != domain.ModeDemo {
		return errors.Errorf("unknown mode %q", e.Session.Mode)
	}
	return nil
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return errors.New("strategy and trade ids are required")
		}
	}
	return nil
}
