package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway until interrupted",
	Long: `Resolve the configured exchange session and keep balances, health and
budget history in sync until SIGINT or SIGTERM.

Trade and budget events reach the ledger only through the gateway event bus.
A standalone "exgate run" has no trading engine attached, so the budget
history stays unchanged unless an embedding program publishes to the bus.

Example:
  EXGATE_VAULT_KEY=... exgate run --config exgate.yaml`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runGateway(cmd *cobra.Command, _ []string) error {
	g, _, l, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGateway(g, l)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := g.Run(ctx); err != nil && ctx.Err() == nil {
		l.Error("gateway stopped", zap.Error(err))
		return err
	}
	l.Info("gateway stopped")
	return nil
}
