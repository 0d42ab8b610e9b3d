package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/clients"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
	"go.uber.org/zap"
)

type recordingGate struct {
	d     *dispatcher.Dispatcher
	mu    sync.Mutex
	calls []string
}

func (g *recordingGate) Submit(ctx context.Context, name string, op dispatcher.Operation) error {
	g.mu.Lock()
	g.calls = append(g.calls, name)
	g.mu.Unlock()
	return g.d.Submit(ctx, name, op)
}

func (g *recordingGate) names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func binanceUserStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/userDataStream", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"listenKey":"lk-1"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"100","locked":"0"},{"asset":"BTC","free":"1","locked":"0"}]}`))
	})
	mux.HandleFunc("/ws/lk-1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"e":"outboundAccountPosition","E":1,"B":[{"a":"USDT","f":"90","l":"10"}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinance_StreamBalancesUsesGate(t *testing.T) {
	srv := binanceUserStreamServer(t)

	c := clients.NewBinanceClients("key", "secret", false)
	c.Spot.BaseURL = srv.URL
	b := NewBinance(c, zap.NewNop())
	b.wsURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"

	gate := &recordingGate{d: dispatcher.New(zap.NewNop(), clockwork.NewRealClock())}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	patches := make(chan domain.BalancePatch, 1)
	done := make(chan error, 1)
	go func() {
		done <- b.StreamBalances(ctx, StreamDeps{Gate: gate, Clock: clockwork.NewFakeClock()}, func(p domain.BalancePatch) {
			patches <- p
		})
	}()

	var patch domain.BalancePatch
	select {
	case patch = <-patches:
	case <-time.After(5 * time.Second):
		t.Fatal("no balance patch received")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assets := map[string]domain.AssetBalance{}
	for _, a := range patch.Wallet.Assets {
		assets[a.Asset] = a
	}
	require.Contains(t, assets, "USDT")
	require.Contains(t, assets, "BTC")
	assert.True(t, decimal.NewFromInt(90).Equal(assets["USDT"].Free))
	assert.True(t, decimal.NewFromInt(10).Equal(assets["USDT"].Used))
	assert.True(t, decimal.NewFromInt(1).Equal(assets["BTC"].Free), "unchanged assets come from the snapshot")

	assert.Equal(t, []string{
		"binance:startUserStream",
		"binance:fetchBalance:spot",
		"binance:closeUserStream",
	}, gate.names())
}
