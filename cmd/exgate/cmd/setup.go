package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vadiminshakov/exgate/config"
	"github.com/vadiminshakov/exgate/internal/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the interactive configuration wizard",
	Long: `Walk through exchange, credential and health settings, write the config
file and store the credentials encrypted when a vault key is set.

Example:
  EXGATE_VAULT_KEY=... exgate setup --output exgate.yaml`,
	RunE: runSetup,
}

var setupOutput string

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().StringVarP(&setupOutput, "output", "o", "exgate.yaml", "config file to write")
}

func runSetup(cmd *cobra.Command, _ []string) error {
	base, err := config.Load(configPath)
	if err != nil {
		return err
	}
	res, err := setup.Run(base)
	if err != nil {
		return err
	}
	if err := res.Config.Save(setupOutput); err != nil {
		return err
	}
	setup.Done(fmt.Sprintf("Configuration saved to %s", setupOutput))

	if res.Credential == nil {
		return nil
	}
	if err := requireVaultKey(res.Config); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "credentials not stored: %v\nset %s and run exgate creds set --exchange %s\n",
			err, config.VaultKeyEnv, res.Config.Exchange.ID)
		return nil
	}

	g, l, err := buildGateway(res.Config)
	if err != nil {
		return err
	}
	defer closeGateway(g, l)
	if err := g.Sessions.SaveCredentials(cmd.Context(), res.Config.Exchange.ID, *res.Credential); err != nil {
		return err
	}
	setup.Done(fmt.Sprintf("Credentials for %s stored encrypted", res.Config.Exchange.ID))
	return nil
}
