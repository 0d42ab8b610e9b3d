// Package cmd holds the exgate command tree.
package cmd

import (
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/exgate/config"
	"github.com/vadiminshakov/exgate/internal"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "exgate",
	Short: "Multi-exchange gateway for balances, health and budget history",
	Long: `exgate connects to one exchange account at a time (Binance, Bybit,
Hyperliquid or a local demo exchange) and keeps its wallet balances,
connection health and strategy budget history up to date.

Without a config file it runs against the demo exchange and keeps its
stores under ./data.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the yaml config file")
}

// openGateway loads the config and builds the gateway around it. The caller
// closes the gateway and syncs the logger.
func openGateway() (*internal.Gateway, config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	g, l, err := buildGateway(cfg)
	return g, cfg, l, err
}

func buildGateway(cfg config.Config) (*internal.Gateway, *zap.Logger, error) {
	l, err := cfg.Logger()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}
	g, err := internal.NewGateway(cfg, l, clockwork.NewRealClock())
	if err != nil {
		_ = l.Sync()
		return nil, nil, err
	}
	return g, l, nil
}

func closeGateway(g *internal.Gateway, l *zap.Logger) {
	if err := g.Close(); err != nil {
		l.Error("close gateway", zap.Error(err))
	}
	_ = l.Sync()
}
