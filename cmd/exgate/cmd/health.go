package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the active exchange once",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
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
	st := g.Health.Check(ctx)
	printTable(cmd.OutOrStdout(), "Health: "+sess.ExchangeID,
		[]string{"State", "Latency ms", "Message"},
		[][]string{{string(st.State), fmt.Sprint(st.LatencyMs), st.Message}})
	return nil
}
