package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vadiminshakov/exgate/internal/services/analytics"
	"go.uber.org/zap"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the daily budget history of a strategy",
	Long: `Print the daily budget aggregates of a strategy and a summary of its
realised performance.

Example:
  exgate history --strategy grid-btc --days 7`,
	RunE: runHistory,
}

var historyFlags struct {
	strategy string
	days     int
	limit    int
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyFlags.strategy, "strategy", "s", "", "strategy id")
	historyCmd.Flags().IntVarP(&historyFlags.days, "days", "d", 30, "number of days to aggregate")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 500, "entries used for the performance summary")
	_ = historyCmd.MarkFlagRequired("strategy")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	g, _, l, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGateway(g, l)
	if err := g.Ledger.Restore(); err != nil {
		l.Warn("restore ledger history", zap.Error(err))
	}

	ctx := cmd.Context()
	days, err := g.Ledger.GetHistorySummary(ctx, historyFlags.strategy, historyFlags.days)
	if err != nil {
		return err
	}
	// the trend column starts once a full smoothing window is available
	trend, _ := analytics.ProfitTrend(days, analytics.DefaultTrendPeriod)
	offset := len(days) - len(trend)
	rows := make([][]string, 0, len(days))
	for i, d := range days {
		smoothed := "-"
		if len(trend) > 0 && i >= offset {
			smoothed = trend[i-offset].StringFixed(2)
		}
		rows = append(rows, []string{
			d.Date,
			d.Total.StringFixed(2),
			d.Allocated.StringFixed(2),
			d.Available.StringFixed(2),
			d.Profit.StringFixed(2),
			smoothed,
			strconv.Itoa(d.Trades),
		})
	}
	out := cmd.OutOrStdout()
	printTable(out, "Budget history: "+historyFlags.strategy,
		[]string{"Date", "Total", "Allocated", "Available", "Profit", "Profit EMA", "Trades"}, rows)

	entries, err := g.Ledger.GetHistory(ctx, historyFlags.strategy, historyFlags.limit)
	if err != nil {
		return err
	}
	perf := analytics.Summarize(entries)
	printTable(out, "Performance",
		[]string{"Trades", "Closed", "Total P&L", "Win rate %"},
		[][]string{{
			strconv.Itoa(perf.Trades),
			strconv.Itoa(perf.ClosedTrades),
			perf.TotalPnL.StringFixed(2),
			perf.WinRate.StringFixed(2),
		}})
	return nil
}
