// Package connector adapts exchange SDKs to the calls the gateway needs.
package connector

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
)

const (
	ExchangeBinance     = "binance"
	ExchangeBybit       = "bybit"
	ExchangeHyperliquid = "hyperliquid"
	ExchangeDemo        = "demo"
)

// Connector is the exchange surface used by the gateway services.
// Errors are classified into the domain taxonomy.
type Connector interface {
	ID() string
	Has() domain.Capabilities
	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	FetchBalance(ctx context.Context, account domain.AccountType) (domain.WalletBalance, error)
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	LoadMarkets(ctx context.Context) ([]domain.MarketInfo, error)
}

// Streamer is implemented by connectors that push balance updates.
// StreamBalances blocks until ctx is done or the stream fails.
type Streamer interface {
	StreamBalances(ctx context.Context, deps StreamDeps, onPatch func(domain.BalancePatch)) error
}

// Gate admits one outbound call. *dispatcher.Dispatcher satisfies it.
type Gate interface {
	Submit(ctx context.Context, name string, op dispatcher.Operation) error
}

// StreamDeps carries what a stream needs for its REST side calls and timers.
type StreamDeps struct {
	Gate  Gate
	Clock clockwork.Clock
}

func (d StreamDeps) withDefaults() StreamDeps {
	if d.Gate == nil {
		d.Gate = directGate{}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return d
}

type directGate struct{}

func (directGate) Submit(ctx context.Context, _ string, op dispatcher.Operation) error {
	return op(ctx)
}

// Verifier is implemented by connectors that can check credentials with a private call.
type Verifier interface {
	Verify(ctx context.Context) error
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// nonZero drops assets with nothing in them.
func nonZero(assets []domain.AssetBalance) []domain.AssetBalance {
	out := assets[:0]
	for _, a := range assets {
		if a.Free.IsZero() && a.Used.IsZero() {
			continue
		}
		out = append(out, a)
	}
	return out
}

func unsupported(id string, account domain.AccountType) error {
	return domain.Errorf(domain.ErrValidation, "%s does not support %s accounts", id, account)
}
