// Package setup runs the interactive terminal wizard that writes the gateway
// config and collects exchange credentials.
package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/vadiminshakov/exgate/config"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/services/connector"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)

	summaryStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1)
	okStyle      = lipgloss.NewStyle().Foreground(special)
)

// Answers holds everything the wizard asks for.
type Answers struct {
	Exchange    string
	Testnet     bool
	BaseURL     string
	ProbeSymbol string
	Degraded    string
	APIKey      string
	Secret      string
	Passphrase  string
}

// Result is the outcome of a confirmed wizard run. Credential is nil for demo.
type Result struct {
	Config     config.Config
	Credential *domain.Credential
}

// Run launches the wizard on top of base. It returns an error when the user
// cancels.
func Run(base config.Config) (Result, error) {
	a := Answers{
		Exchange:    base.Exchange.ID,
		Testnet:     base.Exchange.Testnet,
		BaseURL:     base.Exchange.BaseURL,
		ProbeSymbol: base.Health.ProbeSymbol,
		Degraded:    base.Health.DegradedThreshold.String(),
	}
	if a.Exchange == "" {
		a.Exchange = connector.ExchangeDemo
	}

	step("STEP 1: EXCHANGE")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select exchange").
				Options(exchangeOptions()...).
				Value(&a.Exchange),
		),
	).Run()
	if err != nil {
		return Result{}, err
	}

	if a.Exchange != connector.ExchangeDemo {
		step("STEP 2: CREDENTIALS")
		keyTitle, secretTitle := credentialTitles(a.Exchange)
		fields := []huh.Field{
			huh.NewInput().
				Title(keyTitle).
				Value(&a.APIKey).
				Validate(required("value")),
			huh.NewInput().
				Title(secretTitle).
				Value(&a.Secret).
				EchoMode(huh.EchoModePassword).
				Validate(required("value")),
			huh.NewInput().
				Title("Passphrase").
				Description("Leave empty if the exchange does not use one").
				Value(&a.Passphrase).
				EchoMode(huh.EchoModePassword),
		}
		switch a.Exchange {
		case connector.ExchangeBinance:
			fields = append(fields, huh.NewConfirm().Title("Use testnet?").Value(&a.Testnet))
		case connector.ExchangeHyperliquid:
			fields = append(fields, huh.NewInput().
				Title("API URL").
				Description("Leave empty for mainnet").
				Value(&a.BaseURL))
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return Result{}, err
		}
	}

	step("STEP 3: HEALTH")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Probe symbol").
				Description("Ticker fetched by the health probe (e.g. BTC/USDT)").
				Value(&a.ProbeSymbol).
				Validate(validateSymbol),
			huh.NewInput().
				Title("Degraded threshold").
				Description("Probe latency above this marks the exchange degraded (e.g. 1s)").
				Value(&a.Degraded).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return Result{}, err
	}

	res, err := Apply(base, a)
	if err != nil {
		return Result{}, err
	}

	step("FINAL CONFIRMATION")
	fmt.Println(summaryStyle.Render(Summary(res)))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return Result{}, err
	}
	if !confirm {
		return Result{}, fmt.Errorf("setup cancelled by user")
	}
	return res, nil
}

// Apply merges the answers into base.
func Apply(base config.Config, a Answers) (Result, error) {
	cfg := base
	cfg.Exchange.ID = strings.ToLower(strings.TrimSpace(a.Exchange))
	cfg.Exchange.Testnet = a.Testnet && cfg.Exchange.ID == connector.ExchangeBinance
	cfg.Exchange.BaseURL = strings.TrimSpace(a.BaseURL)
	cfg.Exchange.Mode = domain.ModeLive
	if cfg.Exchange.ID == connector.ExchangeDemo {
		cfg.Exchange.Mode = domain.ModeDemo
		cfg.Exchange.BaseURL = ""
	}

	if a.ProbeSymbol != "" {
		if err := validateSymbol(a.ProbeSymbol); err != nil {
			return Result{}, err
		}
		cfg.Health.ProbeSymbol = strings.ToUpper(strings.TrimSpace(a.ProbeSymbol))
	}
	if a.Degraded != "" {
		d, err := time.ParseDuration(a.Degraded)
		if err != nil {
			return Result{}, domain.Errorf(domain.ErrValidation, "invalid degraded threshold %q", a.Degraded)
		}
		cfg.Health.DegradedThreshold = d
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{Config: cfg}
	if cfg.Exchange.Mode == domain.ModeLive {
		cred := domain.Credential{
			APIKey:     strings.TrimSpace(a.APIKey),
			Secret:     strings.TrimSpace(a.Secret),
			Passphrase: strings.TrimSpace(a.Passphrase),
		}
		if err := cred.Validate(); err != nil {
			return Result{}, err
		}
		res.Credential = &cred
	}
	return res, nil
}

// Summary renders the saved settings without secrets.
func Summary(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exchange: %s\n", r.Config.Exchange.ID)
	fmt.Fprintf(&b, "Mode: %s\n", r.Config.Exchange.Mode)
	if r.Config.Exchange.Testnet {
		b.WriteString("Testnet: yes\n")
	}
	if r.Config.Exchange.BaseURL != "" {
		fmt.Fprintf(&b, "API URL: %s\n", r.Config.Exchange.BaseURL)
	}
	fmt.Fprintf(&b, "Probe: %s (degraded above %s)\n", r.Config.Health.ProbeSymbol, r.Config.Health.DegradedThreshold)
	if r.Credential != nil {
		fmt.Fprintf(&b, "Credentials: %s\n", r.Credential)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Done prints the success line.
func Done(msg string) {
	fmt.Println(okStyle.Render("✓ " + msg))
}

func step(title string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("EXGATE SETUP"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Configure the exchange gateway."))
	fmt.Println(stepStyle.Render(title))
}

func exchangeOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("Demo (no credentials)", connector.ExchangeDemo)}
	for _, id := range connector.Supported() {
		if id == connector.ExchangeDemo {
			continue
		}
		opts = append(opts, huh.NewOption(strings.ToUpper(id[:1])+id[1:], id))
	}
	return opts
}

func credentialTitles(exchange string) (string, string) {
	if exchange == connector.ExchangeHyperliquid {
		return "Account address", "Private key"
	}
	return "API key", "API secret"
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}

func validateSymbol(s string) error {
	_, err := domain.ParsePair(s)
	return err
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration such as 500ms or 1s")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
