package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker last trade summary for a symbol.
type Ticker struct {
	Symbol     string          `json:"symbol"`
	Last       decimal.Decimal `json:"last"`
	Percentage decimal.Decimal `json:"percentage"`
	Volume     decimal.Decimal `json:"volume"`
	Timestamp  time.Time       `json:"timestamp"`
}

// OrderSide buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType market or limit.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderRequest order to submit through a connector.
type OrderRequest struct {
	Symbol        string
	Type          OrderType
	Side          OrderSide
	Amount        decimal.Decimal
	Price         *decimal.Decimal
	ClientOrderID string
}

// Validate checks the request before it reaches an exchange.
func (r OrderRequest) Validate() error {
	if _, err := ParsePair(r.Symbol); err != nil {
		return err
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return Errorf(ErrValidation, "invalid order side %q", r.Side)
	}
	if r.Type != OrderMarket && r.Type != OrderLimit {
		return Errorf(ErrValidation, "invalid order type %q", r.Type)
	}
	if !r.Amount.IsPositive() {
		return Errorf(ErrValidation, "order amount must be positive")
	}
	if r.Type == OrderLimit && (r.Price == nil || !r.Price.IsPositive()) {
		return Errorf(ErrValidation, "limit order requires a positive price")
	}
	return nil
}

// OrderResult exchange acknowledgement of an order.
type OrderResult struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Price         decimal.Decimal `json:"price"`
	Timestamp     time.Time       `json:"timestamp"`
}

// MarketInfo tradable market description.
type MarketInfo struct {
	Symbol    string          `json:"symbol"`
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Active    bool            `json:"active"`
	MinAmount decimal.Decimal `json:"min_amount"`
}
