package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/config"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage = config.Storage{
		KVDir:      filepath.Join(dir, "kv"),
		SQLitePath: filepath.Join(dir, "exgate.db"),
		WALDir:     filepath.Join(dir, "wal"),
	}
	cfg.Vault.Key = "gateway test passphrase"
	cfg.Ledger.Throttle = 0
	return cfg
}

func TestGateway_DemoRun(t *testing.T) {
	g, err := NewGateway(testConfig(t), zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return g.Balances.Snapshot().Spot.Total.IsPositive() && g.Health.Status().State == domain.HealthHealthy
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.ModeDemo, g.Sessions.Mode())

	trade := events.TradeCreated{
		TradeID: "t1", StrategyID: "S1", Symbol: "BTC/USDT", Side: domain.SideBuy,
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(10),
	}
	assert.Eventually(t, func() bool {
		assert.NoError(t, g.Bus.TradeCreated.Publish(trade))
		h, _ := g.Ledger.GetHistory(ctx, "S1", 0)
		return len(h) > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestGateway_LiveNeedsVaultKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vault.Key = ""
	cfg.Exchange = config.Exchange{ID: "binance", Mode: domain.ModeLive}

	_, err := NewGateway(cfg, zap.NewNop(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGateway_DemoWithoutVaultKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vault.Key = ""
	g, err := NewGateway(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	s, err := g.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, s.Mode)
}
