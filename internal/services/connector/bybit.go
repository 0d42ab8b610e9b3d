package connector

import (
	"context"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

// Bybit V5 connector. Spot balances come from the unified account,
// futures from the contract account.
type Bybit struct {
	client *bybit.Client
	l      *zap.Logger
}

func NewBybit(client *bybit.Client, l *zap.Logger) *Bybit {
	if l == nil {
		l = zap.NewNop()
	}
	return &Bybit{client: client, l: l}
}

func (b *Bybit) ID() string { return ExchangeBybit }

func (b *Bybit) Has() domain.Capabilities {
	return domain.Capabilities{
		Futures:     true,
		OrderTypes:  []string{string(domain.OrderMarket), string(domain.OrderLimit)},
		TimeInForce: []string{"GTC", "IOC", "FOK", "PostOnly"},
	}
}

func (b *Bybit) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	sym := bybit.SymbolV5(pair.Symbol())

	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &sym,
	})
	if err != nil {
		return domain.Ticker{}, errors.Wrap(classify(err), "bybit ticker")
	}
	if len(result.Result.Spot.List) == 0 {
		return domain.Ticker{}, domain.Errorf(domain.ErrValidation, "bybit returned no ticker for %s", pair)
	}

	return domain.Ticker{
		Symbol:    pair.String(),
		Last:      parseDecimal(result.Result.Spot.List[0].LastPrice),
		Timestamp: time.Now(),
	}, nil
}

func (b *Bybit) FetchBalance(ctx context.Context, account domain.AccountType) (domain.WalletBalance, error) {
	wallet := domain.WalletBalance{Account: account}

	var accountType bybit.AccountTypeV5
	switch account {
	case domain.AccountSpot:
		accountType = bybit.AccountTypeV5("UNIFIED")
	case domain.AccountFutures:
		accountType = bybit.AccountTypeV5("CONTRACT")
	default:
		return wallet, unsupported(b.ID(), account)
	}

	res, err := b.client.V5().Account().GetWalletBalance(accountType, nil)
	if err != nil {
		return wallet, errors.Wrapf(classify(err), "bybit %s wallet", account)
	}
	if len(res.Result.List) == 0 {
		return wallet, nil
	}

	for _, coin := range res.Result.List[0].Coin {
		total := parseDecimal(coin.WalletBalance)
		locked := parseDecimal(coin.Locked)
		if locked.GreaterThan(total) {
			locked = total
		}
		wallet.Assets = append(wallet.Assets, domain.AssetBalance{
			Asset: string(coin.Coin),
			Free:  total.Sub(locked),
			Used:  locked,
		})
	}

	wallet.Assets = nonZero(wallet.Assets)
	return wallet, nil
}

func (b *Bybit) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderResult{}, err
	}
	pair, _ := domain.ParsePair(req.Symbol)

	side := bybit.SideBuy
	if req.Side == domain.SideSell {
		side = bybit.SideSell
	}
	param := bybit.V5CreateOrderParam{
		Category:  "spot",
		Symbol:    bybit.SymbolV5(pair.Symbol()),
		Side:      side,
		OrderType: bybit.OrderTypeMarket,
		Qty:       req.Amount.RoundFloor(6).String(),
	}
	if req.Type == domain.OrderLimit {
		price := req.Price.String()
		param.OrderType = bybit.OrderTypeLimit
		param.Price = &price
	}
	if req.ClientOrderID != "" {
		id := req.ClientOrderID
		param.OrderLinkID = &id
	}

	res, err := b.client.V5().Order().CreateOrder(param)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(classify(err), "bybit create order")
	}

	b.l.Info("bybit order placed",
		zap.String("symbol", pair.String()),
		zap.String("side", string(req.Side)),
		zap.String("amount", req.Amount.String()))

	return domain.OrderResult{
		ID:            res.Result.OrderID,
		ClientOrderID: res.Result.OrderLinkID,
		Symbol:        pair.String(),
		Status:        "new",
		Timestamp:     time.Now(),
	}, nil
}

func (b *Bybit) LoadMarkets(ctx context.Context) ([]domain.MarketInfo, error) {
	res, err := b.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: "spot",
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), "bybit instruments")
	}

	markets := make([]domain.MarketInfo, 0, len(res.Result.Spot.List))
	for _, inst := range res.Result.Spot.List {
		base, quote := string(inst.BaseCoin), string(inst.QuoteCoin)
		markets = append(markets, domain.MarketInfo{
			Symbol: base + "/" + quote,
			Base:   base,
			Quote:  quote,
			Active: string(inst.Status) == "Trading",
		})
	}
	return markets, nil
}

// Verify fails with an authentication error when the key pair is rejected.
func (b *Bybit) Verify(ctx context.Context) error {
	_, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	return classify(err)
}

var _ Connector = (*Bybit)(nil)
var _ Verifier = (*Bybit)(nil)
