package connector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/clients"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

const binanceClientPrefix = "exgate-"

// Binance spot, cross margin and USDT-M futures connector.
type Binance struct {
	clients *clients.BinanceClients
	l       *zap.Logger
	wsURL   string
}

func NewBinance(c *clients.BinanceClients, l *zap.Logger) *Binance {
	if l == nil {
		l = zap.NewNop()
	}
	return &Binance{clients: c, l: l, wsURL: binanceStreamURL}
}

func (b *Binance) ID() string { return ExchangeBinance }

func (b *Binance) Has() domain.Capabilities {
	return domain.Capabilities{
		Margin:      true,
		Futures:     true,
		WS:          true,
		OrderTypes:  []string{string(domain.OrderMarket), string(domain.OrderLimit)},
		TimeInForce: []string{"GTC", "IOC", "FOK"},
	}
}

func (b *Binance) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	stats, err := b.clients.Spot.NewListPriceChangeStatsService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return domain.Ticker{}, errors.Wrap(classify(err), "binance ticker")
	}
	if len(stats) == 0 {
		return domain.Ticker{}, domain.Errorf(domain.ErrValidation, "binance returned no ticker for %s", pair)
	}

	s := stats[0]
	return domain.Ticker{
		Symbol:     pair.String(),
		Last:       parseDecimal(s.LastPrice),
		Percentage: parseDecimal(s.PriceChangePercent),
		Volume:     parseDecimal(s.Volume),
		Timestamp:  time.UnixMilli(s.CloseTime),
	}, nil
}

func (b *Binance) FetchBalance(ctx context.Context, account domain.AccountType) (domain.WalletBalance, error) {
	wallet := domain.WalletBalance{Account: account}

	switch account {
	case domain.AccountSpot:
		res, err := b.clients.Spot.NewGetAccountService().Do(ctx)
		if err != nil {
			return wallet, errors.Wrap(classify(err), "binance spot account")
		}
		for _, bal := range res.Balances {
			wallet.Assets = append(wallet.Assets, domain.AssetBalance{
				Asset: bal.Asset,
				Free:  parseDecimal(bal.Free),
				Used:  parseDecimal(bal.Locked),
			})
		}
	case domain.AccountMargin:
		res, err := b.clients.Spot.NewGetMarginAccountService().Do(ctx)
		if err != nil {
			return wallet, errors.Wrap(classify(err), "binance margin account")
		}
		for _, asset := range res.UserAssets {
			wallet.Assets = append(wallet.Assets, domain.AssetBalance{
				Asset: asset.Asset,
				Free:  parseDecimal(asset.Free),
				Used:  parseDecimal(asset.Locked),
			})
		}
	case domain.AccountFutures:
		res, err := b.clients.Futures.NewGetAccountService().Do(ctx)
		if err != nil {
			return wallet, errors.Wrap(classify(err), "binance futures account")
		}
		for _, asset := range res.Assets {
			total := parseDecimal(asset.WalletBalance)
			free := parseDecimal(asset.AvailableBalance)
			if free.GreaterThan(total) {
				free = total
			}
			wallet.Assets = append(wallet.Assets, domain.AssetBalance{
				Asset: asset.Asset,
				Free:  free,
				Used:  total.Sub(free),
			})
		}
	default:
		return wallet, unsupported(b.ID(), account)
	}

	wallet.Assets = nonZero(wallet.Assets)
	return wallet, nil
}

func (b *Binance) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderResult{}, err
	}
	pair, _ := domain.ParsePair(req.Symbol)

	side := binance.SideTypeBuy
	if req.Side == domain.SideSell {
		side = binance.SideTypeSell
	}
	clientID := req.ClientOrderID
	if clientID != "" && !strings.HasPrefix(clientID, binanceClientPrefix) {
		clientID = binanceClientPrefix + clientID
	}

	svc := b.clients.Spot.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(side).
		Quantity(req.Amount.RoundFloor(8).String())
	if clientID != "" {
		svc = svc.NewClientOrderID(clientID)
	}
	if req.Type == domain.OrderLimit {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(classify(err), "binance create order")
	}

	b.l.Info("binance order placed",
		zap.String("symbol", pair.String()),
		zap.String("side", string(req.Side)),
		zap.String("amount", req.Amount.String()),
		zap.String("client_order_id", res.ClientOrderID))

	return domain.OrderResult{
		ID:            strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        pair.String(),
		Status:        strings.ToLower(string(res.Status)),
		Filled:        parseDecimal(res.ExecutedQuantity),
		Price:         parseDecimal(res.Price),
		Timestamp:     time.UnixMilli(res.TransactTime),
	}, nil
}

func (b *Binance) LoadMarkets(ctx context.Context) ([]domain.MarketInfo, error) {
	info, err := b.clients.Spot.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(classify(err), "binance exchange info")
	}

	markets := make([]domain.MarketInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		m := domain.MarketInfo{
			Symbol: s.BaseAsset + "/" + s.QuoteAsset,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
		}
		if lot := s.LotSizeFilter(); lot != nil {
			m.MinAmount = parseDecimal(lot.MinQuantity)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// Verify fails with an authentication error when the key pair is rejected.
func (b *Binance) Verify(ctx context.Context) error {
	_, err := b.clients.Spot.NewGetAccountService().Do(ctx)
	return classify(err)
}

var _ Connector = (*Binance)(nil)
var _ Streamer = (*Binance)(nil)
var _ Verifier = (*Binance)(nil)
