package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vadiminshakov/exgate/config"
	"github.com/vadiminshakov/exgate/internal/domain"
)

const (
	apiKeyEnv     = "EXGATE_API_KEY"
	apiSecretEnv  = "EXGATE_API_SECRET"
	passphraseEnv = "EXGATE_API_PASSPHRASE"
)

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage encrypted exchange credentials",
}

var credsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Encrypt and store credentials for an exchange",
	Long: `Store API credentials in the encrypted local store. Values not given
as flags are read from EXGATE_API_KEY, EXGATE_API_SECRET and
EXGATE_API_PASSPHRASE. A vault key is required.

Example:
  EXGATE_VAULT_KEY=... EXGATE_API_SECRET=... exgate creds set --exchange bybit --key abc`,
	RunE: runCredsSet,
}

var credsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove stored credentials for an exchange",
	RunE:  runCredsDelete,
}

var credsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exchanges with stored credentials",
	RunE:  runCredsList,
}

var credsFlags struct {
	exchange   string
	key        string
	secret     string
	passphrase string
}

func init() {
	rootCmd.AddCommand(credsCmd)
	credsCmd.AddCommand(credsSetCmd, credsDeleteCmd, credsListCmd)

	for _, c := range []*cobra.Command{credsSetCmd, credsDeleteCmd} {
		c.Flags().StringVarP(&credsFlags.exchange, "exchange", "e", "", "exchange id (binance, bybit, hyperliquid)")
		_ = c.MarkFlagRequired("exchange")
	}
	credsSetCmd.Flags().StringVar(&credsFlags.key, "key", "", "api key, or account address for hyperliquid")
	credsSetCmd.Flags().StringVar(&credsFlags.secret, "secret", "", "api secret, or private key for hyperliquid")
	credsSetCmd.Flags().StringVar(&credsFlags.passphrase, "passphrase", "", "api passphrase")
}

func flagOrEnv(flag, env string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(env)
}

func requireVaultKey(cfg config.Config) error {
	if cfg.Vault.Key == "" {
		return domain.Errorf(domain.ErrValidation,
			"credentials are only kept with a vault key, set vault.key or %s", config.VaultKeyEnv)
	}
	return nil
}

func runCredsSet(cmd *cobra.Command, _ []string) error {
	g, cfg, l, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGateway(g, l)
	if err := requireVaultKey(cfg); err != nil {
		return err
	}

	cred := domain.Credential{
		APIKey:     flagOrEnv(credsFlags.key, apiKeyEnv),
		Secret:     flagOrEnv(credsFlags.secret, apiSecretEnv),
		Passphrase: flagOrEnv(credsFlags.passphrase, passphraseEnv),
	}
	exchange := strings.ToLower(credsFlags.exchange)
	if err := g.Sessions.SaveCredentials(cmd.Context(), exchange, cred); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s for %s\n", cred, exchange)
	return nil
}

func runCredsDelete(cmd *cobra.Command, _ []string) error {
	g, cfg, l, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGateway(g, l)
	if err := requireVaultKey(cfg); err != nil {
		return err
	}

	exchange := strings.ToLower(credsFlags.exchange)
	if err := g.Sessions.DeleteCredentials(cmd.Context(), exchange); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed credentials for %s\n", exchange)
	return nil
}

func runCredsList(cmd *cobra.Command, _ []string) error {
	g, cfg, l, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGateway(g, l)
	if err := requireVaultKey(cfg); err != nil {
		return err
	}

	wallets := g.Sessions.Wallets()
	if len(wallets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no stored credentials")
		return nil
	}
	for _, w := range wallets {
		fmt.Fprintln(cmd.OutOrStdout(), w)
	}
	return nil
}
