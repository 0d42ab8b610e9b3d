package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/exgate/internal/clients"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

const (
	hyperliquidQuote    = "USDC"
	hyperliquidSlippage = 0.005
)

// Hyperliquid connector. Perp collateral is reported as the futures account.
type Hyperliquid struct {
	client *clients.HyperliquidClient
	l      *zap.Logger
}

func NewHyperliquid(client *clients.HyperliquidClient, l *zap.Logger) *Hyperliquid {
	if l == nil {
		l = zap.NewNop()
	}
	return &Hyperliquid{client: client, l: l}
}

func (h *Hyperliquid) ID() string { return ExchangeHyperliquid }

func (h *Hyperliquid) Has() domain.Capabilities {
	return domain.Capabilities{
		Futures:     true,
		OrderTypes:  []string{string(domain.OrderMarket), string(domain.OrderLimit)},
		TimeInForce: []string{"Gtc", "Ioc", "Alo"},
	}
}

func (h *Hyperliquid) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	mids, err := h.client.Info().AllMids(ctx)
	if err != nil {
		return domain.Ticker{}, errors.Wrap(classify(err), "hyperliquid mids")
	}

	// mids are keyed by base coin
	mid, ok := mids[pair.From]
	if !ok || mid == "" {
		return domain.Ticker{}, domain.Errorf(domain.ErrValidation, "hyperliquid returned no mid price for %s", pair.From)
	}

	return domain.Ticker{
		Symbol:    pair.String(),
		Last:      parseDecimal(mid),
		Timestamp: time.Now(),
	}, nil
}

func (h *Hyperliquid) FetchBalance(ctx context.Context, account domain.AccountType) (domain.WalletBalance, error) {
	wallet := domain.WalletBalance{Account: account}
	info := h.client.Info()
	addr := h.client.AccountAddress()

	switch account {
	case domain.AccountSpot:
		st, err := info.SpotUserState(ctx, addr)
		if err != nil {
			return wallet, errors.Wrap(classify(err), "hyperliquid spot state")
		}
		for _, b := range st.Balances {
			total := parseDecimal(b.Total)
			hold := parseDecimal(b.Hold)
			if hold.GreaterThan(total) {
				hold = total
			}
			wallet.Assets = append(wallet.Assets, domain.AssetBalance{
				Asset: strings.ToUpper(b.Coin),
				Free:  total.Sub(hold),
				Used:  hold,
			})
		}
	case domain.AccountFutures:
		st, err := info.UserState(ctx, addr)
		if err != nil {
			return wallet, errors.Wrap(classify(err), "hyperliquid user state")
		}
		withdrawable := parseDecimal(st.Withdrawable)
		value := parseDecimal(st.MarginSummary.TotalRawUsd)
		if value.LessThan(withdrawable) {
			value = withdrawable
		}
		free := withdrawable
		wallet.Assets = append(wallet.Assets, domain.AssetBalance{
			Asset: hyperliquidQuote,
			Free:  free,
			Used:  value.Sub(free),
		})
	default:
		return wallet, unsupported(h.ID(), account)
	}

	wallet.Assets = nonZero(wallet.Assets)
	return wallet, nil
}

func (h *Hyperliquid) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderResult{}, err
	}
	pair, _ := domain.ParsePair(req.Symbol)
	isBuy := req.Side == domain.SideBuy
	ex := h.client.Exchange()

	var px float64
	tif := hyperliquid.TifGtc
	if req.Type == domain.OrderLimit {
		px, _ = req.Price.Float64()
	} else {
		// market orders are emulated with an IOC limit inside the slippage band
		slipped, err := ex.SlippagePrice(ctx, pair.From, isBuy, hyperliquidSlippage, nil)
		if err != nil {
			return domain.OrderResult{}, errors.Wrap(classify(err), "hyperliquid slippage price")
		}
		px = slipped
		tif = hyperliquid.TifIoc
	}
	size, _ := req.Amount.Round(8).Float64()

	cloid := cloidFromID(req.ClientOrderID)
	_, err := ex.Order(ctx, hyperliquid.CreateOrderRequest{
		Coin:          pair.From,
		IsBuy:         isBuy,
		Price:         px,
		Size:          size,
		ClientOrderID: &cloid,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: tif},
		},
	}, nil)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(classify(err), "hyperliquid order")
	}

	h.l.Info("hyperliquid order placed",
		zap.String("coin", pair.From),
		zap.Bool("buy", isBuy),
		zap.Float64("size", size))

	return domain.OrderResult{
		ClientOrderID: cloid,
		Symbol:        pair.String(),
		Status:        "new",
		Price:         decimal.NewFromFloat(px),
		Timestamp:     time.Now(),
	}, nil
}

func (h *Hyperliquid) LoadMarkets(ctx context.Context) ([]domain.MarketInfo, error) {
	mids, err := h.client.Info().AllMids(ctx)
	if err != nil {
		return nil, errors.Wrap(classify(err), "hyperliquid mids")
	}

	coins := make([]string, 0, len(mids))
	for coin := range mids {
		// spot pairs are addressed by index ("@107") and have no readable base
		if strings.HasPrefix(coin, "@") {
			continue
		}
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	markets := make([]domain.MarketInfo, 0, len(coins))
	for _, coin := range coins {
		markets = append(markets, domain.MarketInfo{
			Symbol: coin + "/" + hyperliquidQuote,
			Base:   coin,
			Quote:  hyperliquidQuote,
			Active: true,
		})
	}
	return markets, nil
}

// Verify reads the account state, which fails for unknown addresses.
func (h *Hyperliquid) Verify(ctx context.Context) error {
	_, err := h.client.Info().UserState(ctx, h.client.AccountAddress())
	return classify(err)
}

// cloidFromID converts a free-form client id into a Hyperliquid cloid (0x + 32 hex chars).
func cloidFromID(id string) string {
	s := strings.TrimSpace(id)
	if s == "" {
		s = time.Now().Format(time.RFC3339Nano)
	}
	sum := sha256.Sum256([]byte(s))
	return "0x" + hex.EncodeToString(sum[:16])
}

var _ Connector = (*Hyperliquid)(nil)
var _ Verifier = (*Hyperliquid)(nil)
