package connector

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

const (
	binanceStreamURL     = "wss://stream.binance.com:9443/ws/"
	listenKeyKeepalive   = 30 * time.Minute
	streamReadTimeout    = 3 * time.Minute
	accountPositionEvent = "outboundAccountPosition"
)

type accountPosition struct {
	Event    string `json:"e"`
	Time     int64  `json:"E"`
	Balances []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

// StreamBalances follows the spot user data stream. Position events only carry the
// assets that changed, so they are merged into a REST snapshot and every patch
// carries the complete spot wallet. Listen key calls and the seed snapshot go
// through deps.Gate.
func (b *Binance) StreamBalances(ctx context.Context, deps StreamDeps, onPatch func(domain.BalancePatch)) error {
	deps = deps.withDefaults()

	var listenKey string
	err := deps.Gate.Submit(ctx, "binance:startUserStream", func(ctx context.Context) error {
		key, err := b.clients.Spot.NewStartUserStreamService().Do(ctx)
		if err != nil {
			return errors.Wrap(classify(err), "binance start user stream")
		}
		listenKey = key
		return nil
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := deps.Gate.Submit(closeCtx, "binance:closeUserStream", func(ctx context.Context) error {
			return classify(b.clients.Spot.NewCloseUserStreamService().ListenKey(listenKey).Do(ctx))
		})
		if err != nil {
			b.l.Debug("close binance listen key", zap.Error(err))
		}
	}()

	var seed domain.WalletBalance
	err = deps.Gate.Submit(ctx, "binance:fetchBalance:spot", func(ctx context.Context) error {
		var err error
		seed, err = b.FetchBalance(ctx, domain.AccountSpot)
		return err
	})
	if err != nil {
		return err
	}
	assets := make(map[string]domain.AssetBalance, len(seed.Assets))
	for _, a := range seed.Assets {
		assets[a.Asset] = a
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL+listenKey, nil)
	if err != nil {
		return errors.Wrap(domain.NewError(domain.ErrNetwork, err), "binance user stream dial")
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.keepListenKey(streamCtx, deps, listenKey)
	go func() {
		<-streamCtx.Done()
		_ = conn.Close()
	}()

	b.l.Info("binance balance stream connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(domain.NewError(domain.ErrNetwork, err), "binance user stream read")
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		var ev accountPosition
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != accountPositionEvent {
			continue
		}
		for _, bal := range ev.Balances {
			assets[bal.Asset] = domain.AssetBalance{
				Asset: bal.Asset,
				Free:  parseDecimal(bal.Free),
				Used:  parseDecimal(bal.Locked),
			}
		}

		onPatch(domain.BalancePatch{
			Account: domain.AccountSpot,
			Wallet:  domain.WalletBalance{Account: domain.AccountSpot, Assets: sortedAssets(assets)},
		})
	}
}

func (b *Binance) keepListenKey(ctx context.Context, deps StreamDeps, listenKey string) {
	ticker := deps.Clock.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			err := deps.Gate.Submit(ctx, "binance:keepaliveUserStream", func(ctx context.Context) error {
				return classify(b.clients.Spot.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx))
			})
			if err != nil && ctx.Err() == nil {
				b.l.Warn("binance listen key keepalive failed", zap.Error(err))
			}
		}
	}
}

func sortedAssets(m map[string]domain.AssetBalance) []domain.AssetBalance {
	out := make([]domain.AssetBalance, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return nonZero(out)
}
