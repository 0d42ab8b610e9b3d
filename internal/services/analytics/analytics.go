// Package analytics derives strategy performance figures from ledger entries.
package analytics

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Performance summarises the realised results of a strategy.
type Performance struct {
	Trades       int             `json:"trades"`
	ClosedTrades int             `json:"closed_trades"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	WinRate      decimal.Decimal `json:"win_rate"`
}

// Summarize counts trade allocations and realised profit entries.
func Summarize(entries []domain.BudgetHistoryEntry) Performance {
	var p Performance
	for _, e := range entries {
		switch e.ChangeType {
		case domain.ChangeTradeAllocation:
			p.Trades++
		case domain.ChangeProfit:
			p.ClosedTrades++
			p.TotalPnL = p.TotalPnL.Add(e.ChangeAmount)
		}
	}
	p.WinRate = WinRate(entries)
	return p
}

// WinRate is the percentage of profit entries with a positive result, zero
// without any.
func WinRate(entries []domain.BudgetHistoryEntry) decimal.Decimal {
	var closed, won int64
	for _, e := range entries {
		if e.ChangeType != domain.ChangeProfit {
			continue
		}
		closed++
		if e.ChangeAmount.IsPositive() {
			won++
		}
	}
	if closed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(won).Mul(hundred).Div(decimal.NewFromInt(closed)).Round(2)
}

// ProfitFactor is gross profit divided by gross loss. It is undefined when
// there are no losing entries.
func ProfitFactor(entries []domain.BudgetHistoryEntry) (decimal.Decimal, error) {
	gains, losses := decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.ChangeType != domain.ChangeProfit {
			continue
		}
		if e.ChangeAmount.IsPositive() {
			gains = gains.Add(e.ChangeAmount)
		} else {
			losses = losses.Add(e.ChangeAmount.Abs())
		}
	}
	if losses.IsZero() {
		return decimal.Zero, domain.Errorf(domain.ErrValidation, "profit factor is undefined without losses")
	}
	return gains.Div(losses).Round(4), nil
}

// RiskScore is not implemented.
func RiskScore([]domain.BudgetHistoryEntry) (decimal.Decimal, error) {
	return decimal.Zero, domain.NewError(domain.ErrNotImplemented, nil)
}

// Volatility is not implemented.
func Volatility([]domain.BudgetHistoryEntry) (decimal.Decimal, error) {
	return decimal.Zero, domain.NewError(domain.ErrNotImplemented, nil)
}

// SharpeRatio is not implemented.
func SharpeRatio([]domain.BudgetHistoryEntry) (decimal.Decimal, error) {
	return decimal.Zero, domain.NewError(domain.ErrNotImplemented, nil)
}

// Beta is not implemented; it needs a market return series.
func Beta([]domain.BudgetHistoryEntry) (decimal.Decimal, error) {
	return decimal.Zero, domain.NewError(domain.ErrNotImplemented, nil)
}
