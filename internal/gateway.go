package internal

import (
	"context"
	"crypto/rand"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/config"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"github.com/vadiminshakov/exgate/internal/services/balance"
	"github.com/vadiminshakov/exgate/internal/services/budget"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
	"github.com/vadiminshakov/exgate/internal/services/health"
	"github.com/vadiminshakov/exgate/internal/services/ledger"
	"github.com/vadiminshakov/exgate/internal/services/session"
	"github.com/vadiminshakov/exgate/internal/storage/kv"
	"github.com/vadiminshakov/exgate/internal/storage/ledgerjournal"
	"github.com/vadiminshakov/exgate/internal/storage/sqlstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const busBuffer = 64

// Gateway wires the exchange gateway services around one event bus.
type Gateway struct {
	l     *zap.Logger
	clock clockwork.Clock
	cfg   config.Config

	Bus        *events.Bus
	Dispatcher *dispatcher.Dispatcher
	Sessions   *session.Manager
	Balances   *balance.Syncer
	Health     *health.Monitor
	Ledger     *ledger.Recorder
	Validator  *budget.Validator
	Alerts     *budget.Alerts
	Budget     *budget.Service

	kv      *kv.Store
	sql     *sqlstore.Store
	journal *ledgerjournal.Journal
}

// NewGateway opens the stores and builds every service. Live mode requires a
// vault key; demo mode without one uses a throwaway key.
func NewGateway(cfg config.Config, l *zap.Logger, clock clockwork.Clock) (*Gateway, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	vaultKey, ephemeral, err := vaultKey(cfg, l)
	if err != nil {
		return nil, err
	}
	vault, err := session.NewVault(vaultKey)
	if err != nil {
		return nil, errors.Wrap(err, "init credential vault")
	}

	g := &Gateway{l: l, clock: clock, cfg: cfg}
	g.kv, err = kv.Open(kv.Options{Path: cfg.Storage.KVDir, InMemory: ephemeral, EncryptionKey: vaultKey})
	if err != nil {
		return nil, errors.Wrap(err, "open kv store")
	}
	if cfg.Storage.SQLitePath != "" {
		g.sql, err = sqlstore.Open(cfg.Storage.SQLitePath)
		if err != nil {
			g.Close()
			return nil, errors.Wrap(err, "open sqlite store")
		}
	}
	if cfg.Storage.WALDir != "" {
		g.journal, err = ledgerjournal.Open(filepath.Clean(cfg.Storage.WALDir))
		if err != nil {
			g.Close()
			return nil, errors.Wrap(err, "open ledger journal")
		}
	}

	g.Bus = events.NewBus(busBuffer, clock)
	g.Dispatcher = dispatcher.New(l.Named("dispatcher"), clock, dispatcher.WithSettings(dispatcherSettings(cfg)))

	sessionOpts := []session.Option{}
	if g.sql != nil {
		sessionOpts = append(sessionOpts, session.WithMirror(g.sql))
	}
	g.Sessions = session.NewManager(l.Named("session"), clock, g.kv, vault, g.Dispatcher, g.Bus, sessionOpts...)

	g.Balances = balance.NewSyncer(l.Named("balance"), clock, g.Sessions, g.Dispatcher, g.Bus,
		balance.WithPollIntervals(cfg.Balance.PushFallbackPoll, cfg.Balance.PullPoll))

	g.Health = health.NewMonitor(l.Named("health"), clock, g.Sessions, g.Dispatcher, g.Bus,
		health.WithInterval(cfg.Health.Interval),
		health.WithDegradedThreshold(cfg.Health.DegradedThreshold),
		health.WithProbeSymbol(cfg.Health.ProbeSymbol))

	ledgerOpts := []ledger.Option{
		ledger.WithModeProvider(g.Sessions),
		ledger.WithTiming(cfg.Ledger.Throttle, cfg.Ledger.Debounce),
		ledger.WithCircuit(cfg.Ledger.MaxErrors, cfg.Ledger.CircuitReset),
		ledger.WithHistoryCap(cfg.Ledger.HistoryCap),
	}
	if g.sql != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithStore(g.sql))
	}
	if g.journal != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithJournal(g.journal))
	}
	g.Ledger = ledger.NewRecorder(l.Named("ledger"), clock, g.Bus, ledgerOpts...)

	g.Validator = budget.NewValidator(l.Named("budget"), clock, g.Sessions, g.Dispatcher, g.Bus)
	g.Alerts = budget.NewAlerts(l.Named("alerts"), clock, g.Bus)
	g.Budget = budget.NewService(l.Named("budget"), g.Bus, g.Validator, g.Alerts)

	return g, nil
}

// Initialize restores the ledger and resolves the configured session.
func (g *Gateway) Initialize(ctx context.Context) (domain.ExchangeSession, error) {
	if err := g.Ledger.Restore(); err != nil {
		g.l.Warn("restore ledger history", zap.Error(err))
	}
	return g.Sessions.InitializeSession(ctx, g.sessionConfig())
}

// Run initializes the session, starts the background services and blocks
// until ctx is done or a service fails.
func (g *Gateway) Run(ctx context.Context) error {
	s, err := g.Initialize(ctx)
	if err != nil {
		return errors.Wrap(err, "initialize session")
	}
	g.l.Info("gateway started",
		zap.String("exchange", s.ExchangeID),
		zap.String("mode", string(s.Mode)),
		zap.Bool("margin", s.Capabilities.Margin),
		zap.Bool("futures", s.Capabilities.Futures),
		zap.Bool("ws", s.Capabilities.WS))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Balances.Run(ctx) })
	eg.Go(func() error { return g.Health.Run(ctx) })
	eg.Go(func() error { return g.Ledger.Run(ctx) })
	eg.Go(func() error { return g.Budget.Run(ctx) })
	return eg.Wait()
}

// Close releases the stores. It is safe on a partially built gateway.
func (g *Gateway) Close() error {
	var errs []error
	if g.journal != nil {
		errs = append(errs, g.journal.Close())
	}
	if g.sql != nil {
		errs = append(errs, g.sql.Close())
	}
	if g.kv != nil {
		errs = append(errs, g.kv.Close())
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SQL exposes the relational store, nil when none is configured.
func (g *Gateway) SQL() *sqlstore.Store { return g.sql }

func (g *Gateway) sessionConfig() session.Config {
	return session.Config{
		ExchangeID: g.cfg.Exchange.ID,
		Mode:       g.cfg.Exchange.Mode,
		Testnet:    g.cfg.Exchange.Testnet,
		BaseURL:    g.cfg.Exchange.BaseURL,
		Dispatcher: dispatcherSettings(g.cfg),
	}
}

func dispatcherSettings(cfg config.Config) dispatcher.Settings {
	return dispatcher.Settings{
		Burst:          cfg.Dispatcher.Burst,
		RefillInterval: cfg.Dispatcher.RefillInterval,
		MaxConcurrent:  cfg.Dispatcher.MaxConcurrent,
		Timeout:        cfg.Dispatcher.Timeout,
		MaxRetries:     cfg.Dispatcher.MaxRetries,
		BackoffInitial: cfg.Dispatcher.BackoffInitial,
		BackoffMax:     cfg.Dispatcher.BackoffMax,
	}
}

// vaultKey parses the configured key. Without one, demo mode gets an ephemeral
// key and an in-memory kv store.
func vaultKey(cfg config.Config, l *zap.Logger) ([]byte, bool, error) {
	if cfg.Vault.Key != "" {
		key, err := session.ParseKey(cfg.Vault.Key)
		return key, false, errors.Wrap(err, "parse vault key")
	}
	if cfg.Exchange.Mode == domain.ModeLive {
		return nil, false, domain.Errorf(domain.ErrValidation,
			"vault key is required in live mode, set vault.key or %s", config.VaultKeyEnv)
	}
	l.Warn("no vault key configured, credentials are kept in memory for this run")
	key := make([]byte, session.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, false, errors.Wrap(err, "generate vault key")
	}
	return key, true, nil
}
