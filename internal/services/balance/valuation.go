package balance

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/services/connector"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
	"go.uber.org/zap"
)

// Quote currency every account balance is normalized to.
const Quote = "USDT"

// pricer caches USDT prices for the duration of one valuation pass.
type pricer struct {
	l      *zap.Logger
	d      *dispatcher.Dispatcher
	conn   connector.Connector
	prices map[string]decimal.Decimal
}

func newPricer(l *zap.Logger, d *dispatcher.Dispatcher, conn connector.Connector) *pricer {
	return &pricer{l: l, d: d, conn: conn, prices: make(map[string]decimal.Decimal)}
}

// price returns the USDT price of asset, false when it cannot be priced.
func (p *pricer) price(ctx context.Context, asset string) (decimal.Decimal, bool) {
	asset = strings.ToUpper(asset)
	if domain.IsStablecoin(asset) {
		return decimal.NewFromInt(1), true
	}
	if px, ok := p.prices[asset]; ok {
		return px, !px.IsZero()
	}

	ticker, err := dispatcher.Do(ctx, p.d, "fetchTicker", func(ctx context.Context) (domain.Ticker, error) {
		return p.conn.FetchTicker(ctx, asset+"/"+Quote)
	})
	if err != nil || !ticker.Last.IsPositive() {
		p.l.Debug("asset cannot be priced, skipping", zap.String("asset", asset), zap.Error(err))
		p.prices[asset] = decimal.Zero
		return decimal.Zero, false
	}
	p.prices[asset] = ticker.Last
	return ticker.Last, true
}

// value converts a per-asset wallet into a single USDT balance.
func (p *pricer) value(ctx context.Context, wallet domain.WalletBalance) domain.AccountBalance {
	free, used := decimal.Zero, decimal.Zero
	for _, a := range wallet.Assets {
		if a.Free.IsZero() && a.Used.IsZero() {
			continue
		}
		px, ok := p.price(ctx, a.Asset)
		if !ok {
			continue
		}
		free = free.Add(a.Free.Mul(px))
		used = used.Add(a.Used.Mul(px))
	}
	return domain.NewAccountBalance(free, used, Quote)
}
