package connector

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

// DemoQuote quote currency of the demo wallets.
const DemoQuote = "USDT"

var (
	demoDefaultBalance = decimal.NewFromInt(10000)
	demoDefaultPrice   = decimal.NewFromInt(10)

	demoPrices = map[string]decimal.Decimal{
		"BTC":   decimal.NewFromInt(45000),
		"ETH":   decimal.NewFromInt(3000),
		"SOL":   decimal.NewFromInt(100),
		"DOGE":  decimal.RequireFromString("0.1"),
		"XRP":   decimal.RequireFromString("0.5"),
		"ADA":   decimal.RequireFromString("0.4"),
		"DOT":   decimal.NewFromInt(7),
		"AVAX":  decimal.NewFromInt(30),
		"MATIC": decimal.RequireFromString("0.8"),
		"LINK":  decimal.NewFromInt(15),
	}
)

// DemoPrice fixed USDT price of an asset in demo mode. Stablecoins are 1.
func DemoPrice(asset string) decimal.Decimal {
	asset = strings.ToUpper(asset)
	if domain.IsStablecoin(asset) {
		return decimal.NewFromInt(1)
	}
	if p, ok := demoPrices[asset]; ok {
		return p
	}
	return demoDefaultPrice
}

// DemoWallets returns the starting wallets of a demo session.
func DemoWallets() map[domain.AccountType]map[string]decimal.Decimal {
	return map[domain.AccountType]map[string]decimal.Decimal{
		domain.AccountSpot: {
			DemoQuote: demoDefaultBalance,
			"BTC":     decimal.RequireFromString("0.1"),
			"ETH":     decimal.NewFromInt(1),
			"SOL":     decimal.NewFromInt(10),
			"DOGE":    decimal.NewFromInt(1000),
		},
		domain.AccountMargin: {
			DemoQuote: demoDefaultBalance,
		},
		domain.AccountFutures: {
			DemoQuote: demoDefaultBalance,
		},
	}
}

// Demo deterministic paper exchange. Market orders fill at the fixed demo price.
type Demo struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	l       *zap.Logger
	wallets map[domain.AccountType]map[string]decimal.Decimal
}

func NewDemo(clock clockwork.Clock, l *zap.Logger) *Demo {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Demo{clock: clock, l: l, wallets: DemoWallets()}
}

func (d *Demo) ID() string { return ExchangeDemo }

func (d *Demo) Has() domain.Capabilities {
	return domain.Capabilities{
		Margin:      true,
		Futures:     true,
		OrderTypes:  []string{string(domain.OrderMarket), string(domain.OrderLimit)},
		TimeInForce: []string{"GTC"},
	}
}

func (d *Demo) FetchTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	last := DemoPrice(pair.From).Div(DemoPrice(pair.To))
	return domain.Ticker{
		Symbol:    pair.String(),
		Last:      last,
		Timestamp: d.clock.Now(),
	}, nil
}

func (d *Demo) FetchBalance(_ context.Context, account domain.AccountType) (domain.WalletBalance, error) {
	if !account.IsValid() {
		return domain.WalletBalance{}, unsupported(d.ID(), account)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	wallet := domain.WalletBalance{Account: account}
	for asset, amount := range d.wallets[account] {
		wallet.Assets = append(wallet.Assets, domain.AssetBalance{Asset: asset, Free: amount})
	}
	sort.Slice(wallet.Assets, func(i, j int) bool { return wallet.Assets[i].Asset < wallet.Assets[j].Asset })
	wallet.Assets = nonZero(wallet.Assets)
	return wallet, nil
}

// CreateOrder fills immediately against the spot wallet.
func (d *Demo) CreateOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderResult{}, err
	}
	pair, _ := domain.ParsePair(req.Symbol)

	price := DemoPrice(pair.From).Div(DemoPrice(pair.To))
	if req.Type == domain.OrderLimit {
		price = *req.Price
	}
	cost := req.Amount.Mul(price)

	d.mu.Lock()
	defer d.mu.Unlock()

	spot := d.wallets[domain.AccountSpot]
	switch req.Side {
	case domain.SideBuy:
		if spot[pair.To].LessThan(cost) {
			return domain.OrderResult{}, domain.Errorf(domain.ErrValidation,
				"insufficient %s: have %s, need %s", pair.To, spot[pair.To], cost)
		}
		spot[pair.To] = spot[pair.To].Sub(cost)
		spot[pair.From] = spot[pair.From].Add(req.Amount)
	case domain.SideSell:
		if spot[pair.From].LessThan(req.Amount) {
			return domain.OrderResult{}, domain.Errorf(domain.ErrValidation,
				"insufficient %s: have %s, need %s", pair.From, spot[pair.From], req.Amount)
		}
		spot[pair.From] = spot[pair.From].Sub(req.Amount)
		spot[pair.To] = spot[pair.To].Add(cost)
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	d.l.Debug("demo order filled",
		zap.String("symbol", pair.String()),
		zap.String("side", string(req.Side)),
		zap.String("amount", req.Amount.String()),
		zap.String("price", price.String()))

	return domain.OrderResult{
		ID:            uuid.NewString(),
		ClientOrderID: clientID,
		Symbol:        pair.String(),
		Status:        "closed",
		Filled:        req.Amount,
		Price:         price,
		Timestamp:     d.clock.Now(),
	}, nil
}

func (d *Demo) LoadMarkets(_ context.Context) ([]domain.MarketInfo, error) {
	bases := make([]string, 0, len(demoPrices))
	for base := range demoPrices {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	markets := make([]domain.MarketInfo, 0, len(bases))
	for _, base := range bases {
		markets = append(markets, domain.MarketInfo{
			Symbol:    base + "/" + DemoQuote,
			Base:      base,
			Quote:     DemoQuote,
			Active:    true,
			MinAmount: decimal.New(1, -8),
		})
	}
	return markets, nil
}

var _ Connector = (*Demo)(nil)
