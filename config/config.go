// Package config loads the exgate yaml configuration.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// VaultKeyEnv overrides vault.key.
const VaultKeyEnv = "EXGATE_VAULT_KEY"

type Config struct {
	Exchange   Exchange   `yaml:"exchange"`
	Dispatcher Dispatcher `yaml:"dispatcher"`
	Balance    Balance    `yaml:"balance"`
	Health     Health     `yaml:"health"`
	Ledger     Ledger     `yaml:"ledger"`
	Storage    Storage    `yaml:"storage"`
	Vault      Vault      `yaml:"vault"`
	Log        Log        `yaml:"log"`
}

type Exchange struct {
	ID      string      `yaml:"id"`
	Mode    domain.Mode `yaml:"mode"`
	Testnet bool        `yaml:"testnet"`
	BaseURL string      `yaml:"base_url"`
}

type Dispatcher struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

type Balance struct {
	PushFallbackPoll time.Duration `yaml:"push_fallback_poll"`
	PullPoll         time.Duration `yaml:"pull_poll"`
}

type Health struct {
	Interval          time.Duration `yaml:"interval"`
	DegradedThreshold time.Duration `yaml:"degraded_threshold"`
	ProbeSymbol       string        `yaml:"probe_symbol"`
}

type Ledger struct {
	Throttle     time.Duration `yaml:"throttle"`
	Debounce     time.Duration `yaml:"debounce"`
	MaxErrors    int           `yaml:"max_errors"`
	CircuitReset time.Duration `yaml:"circuit_reset"`
	HistoryCap   int           `yaml:"history_cap"`
}

type Storage struct {
	KVDir      string `yaml:"kv_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	WALDir     string `yaml:"wal_dir"`
}

// Vault holds the master key: 32 bytes as hex or base64, or a passphrase.
type Vault struct {
	Key string `yaml:"key,omitempty"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// fileConfig mirrors the yaml layout; absent sections keep their defaults.
type fileConfig struct {
	Exchange   *Exchange   `yaml:"exchange"`
	Dispatcher *Dispatcher `yaml:"dispatcher"`
	Balance    *Balance    `yaml:"balance"`
	Health     *Health     `yaml:"health"`
	Ledger     *Ledger     `yaml:"ledger"`
	Storage    *Storage    `yaml:"storage"`
	Vault      *Vault      `yaml:"vault"`
	Log        *Log        `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Exchange: Exchange{ID: "demo", Mode: domain.ModeDemo},
		Dispatcher: Dispatcher{
			Burst:          5,
			RefillInterval: 2 * time.Second,
			MaxConcurrent:  10,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			BackoffInitial: 500 * time.Millisecond,
			BackoffMax:     10 * time.Second,
		},
		Balance: Balance{PushFallbackPoll: 60 * time.Second, PullPoll: 10 * time.Second},
		Health: Health{
			Interval:          30 * time.Second,
			DegradedThreshold: time.Second,
			ProbeSymbol:       "BTC/USDT",
		},
		Ledger: Ledger{
			Throttle:     5 * time.Second,
			Debounce:     time.Second,
			MaxErrors:    3,
			CircuitReset: 60 * time.Second,
			HistoryCap:   100,
		},
		Storage: Storage{
			KVDir:      "./data/kv",
			SQLitePath: "./data/exgate.db",
			WALDir:     "./data/wal/ledger",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the yaml file at path over the defaults. An empty path yields the
// defaults. The vault key may come from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := parse(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if key := os.Getenv(VaultKeyEnv); key != "" {
		cfg.Vault.Key = key
	}
	cfg.Exchange.ID = strings.ToLower(strings.TrimSpace(cfg.Exchange.ID))
	if cfg.Exchange.Mode == "" {
		cfg.Exchange.Mode = domain.ModeLive
		if cfg.Exchange.ID == "" || cfg.Exchange.ID == "demo" {
			cfg.Exchange.Mode = domain.ModeDemo
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path as yaml. The vault key is never written.
func (c Config) Save(path string) error {
	c.Vault.Key = ""
	raw, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

func parse(raw []byte, cfg *Config) error {
	file := fileConfig{
		Exchange:   &cfg.Exchange,
		Dispatcher: &cfg.Dispatcher,
		Balance:    &cfg.Balance,
		Health:     &cfg.Health,
		Ledger:     &cfg.Ledger,
		Storage:    &cfg.Storage,
		Vault:      &cfg.Vault,
		Log:        &cfg.Log,
	}
	return yaml.Unmarshal(raw, &file)
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Exchange.Mode == domain.ModeLive || c.Exchange.Mode == domain.ModeDemo, "exchange.mode must be live or demo")
	check(c.Dispatcher.Burst >= 1, "dispatcher.burst must be at least 1")
	check(c.Dispatcher.RefillInterval > 0, "dispatcher.refill_interval must be positive")
	check(c.Dispatcher.MaxConcurrent >= 1, "dispatcher.max_concurrent must be at least 1")
	check(c.Dispatcher.Timeout > 0, "dispatcher.timeout must be positive")
	check(c.Dispatcher.MaxRetries >= 0, "dispatcher.max_retries must not be negative")
	check(c.Dispatcher.BackoffInitial > 0 && c.Dispatcher.BackoffInitial <= c.Dispatcher.BackoffMax,
		"dispatcher.backoff_initial must be positive and not above backoff_max")
	check(c.Balance.PushFallbackPoll > 0 && c.Balance.PullPoll > 0, "balance poll intervals must be positive")
	check(c.Health.Interval > 0, "health.interval must be positive")
	check(c.Health.DegradedThreshold > 0, "health.degraded_threshold must be positive")
	check(c.Health.DegradedThreshold < c.Dispatcher.Timeout, "health.degraded_threshold must be below dispatcher.timeout")
	if _, err := domain.ParsePair(c.Health.ProbeSymbol); err != nil {
		problems = append(problems, "health.probe_symbol: "+err.Error())
	}
	check(c.Ledger.Throttle >= 0, "ledger.throttle must not be negative")
	check(c.Ledger.Debounce > 0, "ledger.debounce must be positive")
	check(c.Ledger.MaxErrors >= 1, "ledger.max_errors must be at least 1")
	check(c.Ledger.CircuitReset > 0, "ledger.circuit_reset must be positive")
	check(c.Ledger.HistoryCap >= 1, "ledger.history_cap must be at least 1")
	check(c.Storage.KVDir != "", "storage.kv_dir is required")
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level: "+err.Error())
	}

	if len(problems) > 0 {
		return domain.Errorf(domain.ErrValidation, "invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Logger builds the zap logger described by the log section.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
