package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance balance of one account type, valued in Currency.
// Total is always Free + Used.
type AccountBalance struct {
	Free     decimal.Decimal `json:"free"`
	Used     decimal.Decimal `json:"used"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// NewAccountBalance builds a balance and derives the total.
func NewAccountBalance(free, used decimal.Decimal, currency string) AccountBalance {
	return AccountBalance{
		Free:     free,
		Used:     used,
		Total:    free.Add(used),
		Currency: currency,
	}
}

// Consistent reports whether the total matches free + used exactly.
func (b AccountBalance) Consistent() bool {
	return b.Total.Equal(b.Free.Add(b.Used))
}

// MultiWalletBalance spot, margin and futures balances of the active session.
type MultiWalletBalance struct {
	Spot      AccountBalance `json:"spot"`
	Margin    AccountBalance `json:"margin"`
	Futures   AccountBalance `json:"futures"`
	Timestamp time.Time      `json:"timestamp"`
}

// Get returns the balance of the account type.
func (m MultiWalletBalance) Get(t AccountType) AccountBalance {
	switch t {
	case AccountMargin:
		return m.Margin
	case AccountFutures:
		return m.Futures
	default:
		return m.Spot
	}
}

// With returns a copy with the account type replaced as a whole.
func (m MultiWalletBalance) With(t AccountType, b AccountBalance) MultiWalletBalance {
	b = NewAccountBalance(b.Free, b.Used, b.Currency)
	switch t {
	case AccountMargin:
		m.Margin = b
	case AccountFutures:
		m.Futures = b
	default:
		m.Spot = b
	}
	return m
}

// AssetBalance amounts of a single asset inside one account.
type AssetBalance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
}

// Total returns free + used.
func (a AssetBalance) Total() decimal.Decimal {
	return a.Free.Add(a.Used)
}

// WalletBalance per-asset balances of one account as reported by a connector.
type WalletBalance struct {
	Account AccountType    `json:"account"`
	Assets  []AssetBalance `json:"assets"`
}

// BalancePatch an incremental update for one account type.
type BalancePatch struct {
	Account AccountType
	Wallet  WalletBalance
	// Balance when set is applied as-is, otherwise Wallet is valued first.
	Balance   *AccountBalance
	ArrivedAt time.Time
}
