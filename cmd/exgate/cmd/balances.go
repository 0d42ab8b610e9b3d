package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vadiminshakov/exgate/internal/domain"
)

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Fetch the spot, margin and futures balances once",
	RunE:  runBalances,
}

func init() {
	rootCmd.AddCommand(balancesCmd)
}

func runBalances(cmd *cobra.Command, _ []string) error {
	g, _, l, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGateway(g, l)

	ctx := cmd.Context()
	sess, err := g.Initialize(ctx)
	if err != nil {
		return err
	}
	snap, err := g.Balances.FetchAllWalletBalances(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(domain.AccountTypes))
	for _, t := range domain.AccountTypes {
		b := snap.Get(t)
		rows = append(rows, []string{
			string(t),
			b.Free.StringFixed(2),
			b.Used.StringFixed(2),
			b.Total.StringFixed(2),
			b.Currency,
		})
	}
	title := strings.Join([]string{sess.ExchangeID, string(sess.Mode), snap.Timestamp.UTC().Format(time.RFC3339)}, " | ")
	printTable(cmd.OutOrStdout(), title, []string{"Account", "Free", "Used", "Total", "Currency"}, rows)
	return nil
}
