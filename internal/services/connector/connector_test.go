package connector

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "binance rate limit", err: &common.APIError{Code: -1003, Message: "too much request weight"}, want: domain.ErrRateLimitExceeded},
		{name: "binance invalid key", err: &common.APIError{Code: -2015, Message: "Invalid API-key"}, want: domain.ErrAuthentication},
		{name: "binance bad signature", err: &common.APIError{Code: -1022, Message: "Signature for this request is not valid."}, want: domain.ErrAuthentication},
		{name: "binance internal", err: &common.APIError{Code: -1001, Message: "disconnected"}, want: domain.ErrNetwork},
		{name: "binance bad param", err: &common.APIError{Code: -1121, Message: "Invalid symbol."}, want: domain.ErrValidation},
		{name: "wrapped binance", err: errors.Wrap(&common.APIError{Code: -1015}, "order"), want: domain.ErrRateLimitExceeded},
		{name: "deadline", err: context.DeadlineExceeded, want: domain.ErrNetwork},
		{name: "eof", err: io.ErrUnexpectedEOF, want: domain.ErrNetwork},
		{name: "net error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: domain.ErrNetwork},
		{name: "http 429", err: errors.New("status 429: Too Many Requests"), want: domain.ErrRateLimitExceeded},
		{name: "bybit auth code", err: errors.New("retCode=10003 invalid api key"), want: domain.ErrAuthentication},
		{name: "gateway", err: errors.New("unexpected status 503"), want: domain.ErrNetwork},
		{name: "already classified", err: domain.NewError(domain.ErrValidation, errors.New("x 503")), want: domain.ErrValidation},
		{name: "unknown", err: errors.New("something odd"), want: nil},
		{name: "canceled", err: context.Canceled, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.want, domain.KindOf(got))
		})
	}

	assert.NoError(t, classify(nil))
}

func TestDemo_Balances(t *testing.T) {
	d := NewDemo(clockwork.NewFakeClock(), zap.NewNop())
	ctx := context.Background()

	spot, err := d.FetchBalance(ctx, domain.AccountSpot)
	require.NoError(t, err)
	assets := make([]string, 0, len(spot.Assets))
	for _, a := range spot.Assets {
		assets = append(assets, a.Asset)
	}
	assert.Equal(t, []string{"BTC", "DOGE", "ETH", "SOL", "USDT"}, assets)

	for _, account := range []domain.AccountType{domain.AccountMargin, domain.AccountFutures} {
		w, err := d.FetchBalance(ctx, account)
		require.NoError(t, err)
		require.Len(t, w.Assets, 1)
		assert.True(t, w.Assets[0].Free.Equal(decimal.NewFromInt(10000)))
	}

	_, err = d.FetchBalance(ctx, domain.AccountType("options"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDemo_TickerUsesFixedPrices(t *testing.T) {
	d := NewDemo(clockwork.NewFakeClock(), nil)

	tests := []struct {
		symbol string
		want   string
	}{
		{symbol: "BTC/USDT", want: "45000"},
		{symbol: "ETHUSDT", want: "3000"},
		{symbol: "doge_usdt", want: "0.1"},
		{symbol: "PEPE/USDT", want: "10"},
		{symbol: "BTC/ETH", want: "15"},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			tk, err := d.FetchTicker(context.Background(), tt.symbol)
			require.NoError(t, err)
			assert.True(t, tk.Last.Equal(decimal.RequireFromString(tt.want)), "got %s", tk.Last)
		})
	}
}

func TestDemo_CreateOrder(t *testing.T) {
	d := NewDemo(clockwork.NewFakeClock(), zap.NewNop())
	ctx := context.Background()

	res, err := d.CreateOrder(ctx, domain.OrderRequest{
		Symbol: "SOL/USDT",
		Type:   domain.OrderMarket,
		Side:   domain.SideBuy,
		Amount: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "closed", res.Status)
	assert.NotEmpty(t, res.ClientOrderID)
	assert.True(t, res.Price.Equal(decimal.NewFromInt(100)))

	spot, err := d.FetchBalance(ctx, domain.AccountSpot)
	require.NoError(t, err)
	for _, a := range spot.Assets {
		switch a.Asset {
		case "SOL":
			assert.True(t, a.Free.Equal(decimal.NewFromInt(15)))
		case "USDT":
			assert.True(t, a.Free.Equal(decimal.NewFromInt(9500)))
		}
	}

	_, err = d.CreateOrder(ctx, domain.OrderRequest{
		Symbol: "BTC/USDT",
		Type:   domain.OrderMarket,
		Side:   domain.SideBuy,
		Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = d.CreateOrder(ctx, domain.OrderRequest{
		Symbol: "ETH/USDT",
		Type:   domain.OrderMarket,
		Side:   domain.SideSell,
		Amount: decimal.NewFromInt(2),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	cred := &domain.Credential{APIKey: "key", Secret: "secret"}

	c, err := New(ctx, "Demo", nil, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ExchangeDemo, c.ID())

	c, err = New(ctx, ExchangeBinance, cred, Options{}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, c.Has().WS)
	_, ok := c.(Streamer)
	assert.True(t, ok)

	c, err = New(ctx, ExchangeBybit, cred, Options{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Has().Margin)

	_, err = New(ctx, ExchangeBinance, nil, Options{}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	_, err = New(ctx, "kraken", cred, Options{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnsupportedExchange)

	_, err = New(ctx, ExchangeHyperliquid, &domain.Credential{APIKey: "0xabc", Secret: "not-hex"}, Options{}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestSortedAssets(t *testing.T) {
	m := map[string]domain.AssetBalance{
		"ETH":  {Asset: "ETH", Free: decimal.NewFromInt(1)},
		"BNB":  {Asset: "BNB"},
		"BTC":  {Asset: "BTC", Used: decimal.NewFromInt(2)},
		"USDT": {Asset: "USDT", Free: decimal.NewFromInt(3)},
	}

	got := sortedAssets(m)
	require.Len(t, got, 3)
	assert.Equal(t, "BTC", got[0].Asset)
	assert.Equal(t, "ETH", got[1].Asset)
	assert.Equal(t, "USDT", got[2].Asset)
}

func TestCloidFromID(t *testing.T) {
	a := cloidFromID("order-1")
	assert.Len(t, a, 34)
	assert.Equal(t, "0x", a[:2])
	assert.Equal(t, a, cloidFromID(" order-1 "))
	assert.NotEqual(t, a, cloidFromID("order-2"))
}
