// Package session owns the single active exchange session and the encrypted
// credential vault.
package session

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/events"
	"github.com/vadiminshakov/exgate/internal/services/connector"
	"github.com/vadiminshakov/exgate/internal/services/dispatcher"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	credKeyPrefix     = "cred:"
	activeExchangeKey = "active_exchange"
	walletsKey        = "wallets"
)

// Store local key-value persistence.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte) error
	Delete(key string) error
}

// ExchangeMirror receives the list of configured exchanges, e.g. the relational store.
type ExchangeMirror interface {
	UpsertUserExchange(ctx context.Context, exchangeID string, active bool, at time.Time) error
	DeleteUserExchange(ctx context.Context, exchangeID string) error
}

// ConnectorFactory builds a connector for an exchange id.
type ConnectorFactory func(ctx context.Context, id string, cred *domain.Credential, opts connector.Options, l *zap.Logger) (connector.Connector, error)

// Config requested session.
type Config struct {
	// ExchangeID empty means the last active exchange.
	ExchangeID string
	// Mode empty means live for real exchanges.
	Mode       domain.Mode
	Testnet    bool
	BaseURL    string
	Dispatcher dispatcher.Settings
}

type Option func(*Manager)

func WithMirror(mirror ExchangeMirror) Option {
	return func(m *Manager) { m.mirror = mirror }
}

func WithConnectorFactory(f ConnectorFactory) Option {
	return func(m *Manager) { m.newConnector = f }
}

// Manager is safe for concurrent use.
type Manager struct {
	l            *zap.Logger
	clock        clockwork.Clock
	store        Store
	vault        *Vault
	dispatcher   *dispatcher.Dispatcher
	bus          *events.Bus
	mirror       ExchangeMirror
	newConnector ConnectorFactory

	init singleflight.Group

	mu      sync.RWMutex
	cfg     Config
	session domain.ExchangeSession
	conn    connector.Connector
}

func NewManager(
	l *zap.Logger,
	clock clockwork.Clock,
	store Store,
	vault *Vault,
	d *dispatcher.Dispatcher,
	bus *events.Bus,
	opts ...Option,
) *Manager {
	if l == nil {
		l = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Manager{
		l:            l,
		clock:        clock,
		store:        store,
		vault:        vault,
		dispatcher:   d,
		bus:          bus,
		newConnector: connector.New,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeSession resolves and activates a session. Concurrent callers share
// the result of the initialization already in flight. Missing, undecryptable or
// rejected credentials resolve to a demo session instead of an error.
// The shared work outlives a cancelled caller and is bounded by twice the
// dispatcher timeout.
func (m *Manager) InitializeSession(ctx context.Context, cfg Config) (domain.ExchangeSession, error) {
	ch := m.init.DoChan("initialize", func() (interface{}, error) {
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.initTimeout(cfg))
		defer cancel()
		return m.initialize(initCtx, cfg)
	})

	select {
	case <-ctx.Done():
		return domain.ExchangeSession{}, errors.Wrap(ctx.Err(), "initialize session")
	case res := <-ch:
		if res.Shared {
			m.l.Debug("joined in-flight session initialization")
		}
		if res.Err != nil {
			return domain.ExchangeSession{}, res.Err
		}
		return res.Val.(domain.ExchangeSession), nil
	}
}

func (m *Manager) initTimeout(cfg Config) time.Duration {
	timeout := cfg.Dispatcher.Timeout
	if timeout <= 0 {
		timeout = m.dispatcher.Settings().Timeout
	}
	return 2 * timeout
}

func (m *Manager) initialize(ctx context.Context, cfg Config) (domain.ExchangeSession, error) {
	cfg.ExchangeID = strings.ToLower(strings.TrimSpace(cfg.ExchangeID))
	if cfg.ExchangeID == "" {
		cfg.ExchangeID = m.activeExchange()
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeLive
	}

	m.dispatcher.Reconfigure(dispatcher.WithSettings(cfg.Dispatcher))

	if cfg.ExchangeID == "" || cfg.ExchangeID == connector.ExchangeDemo || cfg.Mode.IsDemo() {
		return m.activate(ctx, cfg, connector.NewDemo(m.clock, m.l), domain.ModeDemo, "")
	}

	cred := m.loadCredentials(cfg.ExchangeID)
	if cred == nil {
		return m.activate(ctx, cfg, connector.NewDemo(m.clock, m.l), domain.ModeDemo,
			"no usable credentials for "+cfg.ExchangeID)
	}

	conn, err := m.newConnector(ctx, cfg.ExchangeID, cred, connector.Options{
		Testnet: cfg.Testnet,
		BaseURL: cfg.BaseURL,
		Clock:   m.clock,
	}, m.l)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) || errors.Is(err, domain.ErrValidation) {
			return m.activate(ctx, cfg, connector.NewDemo(m.clock, m.l), domain.ModeDemo, err.Error())
		}
		return domain.ExchangeSession{}, errors.Wrapf(err, "create %s connector", cfg.ExchangeID)
	}

	if err := m.probe(ctx, conn); err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return m.activate(ctx, cfg, connector.NewDemo(m.clock, m.l), domain.ModeDemo,
				"credentials rejected: "+err.Error())
		}
		return domain.ExchangeSession{}, errors.Wrapf(err, "probe %s", cfg.ExchangeID)
	}

	return m.activate(ctx, cfg, conn, domain.ModeLive, "")
}

func (m *Manager) probe(ctx context.Context, conn connector.Connector) error {
	if _, err := dispatcher.Do(ctx, m.dispatcher, "loadMarkets", conn.LoadMarkets); err != nil {
		return err
	}
	if v, ok := conn.(connector.Verifier); ok {
		return m.dispatcher.Submit(ctx, "verifyCredentials", v.Verify)
	}
	return nil
}

// activate swaps in the new session. Capabilities are read here once and cached.
func (m *Manager) activate(ctx context.Context, cfg Config, conn connector.Connector, mode domain.Mode, fallback string) (domain.ExchangeSession, error) {
	s := domain.ExchangeSession{
		ID:           uuid.NewString(),
		ExchangeID:   conn.ID(),
		Mode:         mode,
		Capabilities: conn.Has(),
		Active:       true,
		StartedAt:    m.clock.Now(),
	}

	m.mu.Lock()
	m.cfg = cfg
	m.session = s
	m.conn = conn
	m.mu.Unlock()

	if mode == domain.ModeLive {
		if err := m.store.Set(activeExchangeKey, []byte(cfg.ExchangeID)); err != nil {
			m.l.Warn("persist active exchange", zap.Error(err))
		}
		m.mirrorUpsert(ctx, cfg.ExchangeID, true)
	}

	if fallback != "" {
		m.l.Warn("falling back to demo mode",
			zap.String("requested", cfg.ExchangeID),
			zap.String("reason", fallback))
	}
	m.l.Info("session initialized",
		zap.String("session", s.ID),
		zap.String("exchange", s.ExchangeID),
		zap.String("mode", s.Mode.String()),
		zap.Bool("margin", s.Capabilities.Margin),
		zap.Bool("futures", s.Capabilities.Futures),
		zap.Bool("ws", s.Capabilities.WS))

	if m.bus != nil {
		if err := m.bus.SessionInitialized.Publish(events.SessionInitialized{Session: s, Fallback: fallback}); err != nil {
			m.l.Error("publish session initialized", zap.Error(err))
		}
	}
	return s, nil
}

// SwitchMode toggles between live and demo. Demo always succeeds without I/O;
// live requires stored credentials for the configured exchange.
func (m *Manager) SwitchMode(ctx context.Context, live bool) error {
	m.mu.RLock()
	cfg := m.cfg
	current := m.session
	m.mu.RUnlock()

	if !live {
		if current.Active && current.Mode == domain.ModeDemo {
			return nil
		}
		cfg.Mode = domain.ModeDemo
		_, err := m.activate(ctx, cfg, connector.NewDemo(m.clock, m.l), domain.ModeDemo, "")
		return err
	}

	if cfg.ExchangeID == "" {
		cfg.ExchangeID = m.activeExchange()
	}
	if cfg.ExchangeID == "" || cfg.ExchangeID == connector.ExchangeDemo || !m.hasStored(cfg.ExchangeID) {
		return domain.Errorf(domain.ErrAuthentication, "no credentials stored for %q", cfg.ExchangeID)
	}

	cfg.Mode = domain.ModeLive
	s, err := m.InitializeSession(ctx, cfg)
	if err != nil {
		return err
	}
	if s.Mode != domain.ModeLive {
		return domain.Errorf(domain.ErrAuthentication, "credentials for %s were not accepted", cfg.ExchangeID)
	}
	return nil
}

// GetCredentials decrypts the credentials of the configured exchange, nil when there are none.
func (m *Manager) GetCredentials() *domain.Credential {
	m.mu.RLock()
	id := m.cfg.ExchangeID
	m.mu.RUnlock()
	if id == "" {
		return nil
	}
	return m.loadCredentials(id)
}

// HasCredentials reports whether credentials are stored for the configured exchange.
func (m *Manager) HasCredentials() bool {
	m.mu.RLock()
	id := m.cfg.ExchangeID
	m.mu.RUnlock()
	return id != "" && m.hasStored(id)
}

// SaveCredentials encrypts and stores credentials for the exchange.
func (m *Manager) SaveCredentials(ctx context.Context, exchangeID string, cred domain.Credential) error {
	exchangeID = strings.ToLower(strings.TrimSpace(exchangeID))
	if exchangeID == "" || exchangeID == connector.ExchangeDemo {
		return domain.Errorf(domain.ErrValidation, "invalid exchange %q", exchangeID)
	}
	if err := cred.Validate(); err != nil {
		return err
	}

	blob, err := m.vault.Seal(exchangeID, cred)
	if err != nil {
		return errors.Wrap(err, "seal credentials")
	}
	if err := m.store.Set(credKeyPrefix+exchangeID, []byte(blob)); err != nil {
		return errors.Wrap(err, "store credentials")
	}

	wallets := m.Wallets()
	if !contains(wallets, exchangeID) {
		wallets = append(wallets, exchangeID)
		if err := m.saveWallets(wallets); err != nil {
			return err
		}
	}
	m.mirrorUpsert(ctx, exchangeID, m.activeExchange() == exchangeID)

	m.l.Info("credentials saved", zap.String("exchange", exchangeID), zap.Stringer("credential", cred))
	return nil
}

// DeleteCredentials removes stored credentials. A live session on that exchange drops to demo.
func (m *Manager) DeleteCredentials(ctx context.Context, exchangeID string) error {
	exchangeID = strings.ToLower(strings.TrimSpace(exchangeID))
	if err := m.store.Delete(credKeyPrefix + exchangeID); err != nil {
		return errors.Wrap(err, "delete credentials")
	}

	wallets := m.Wallets()
	kept := wallets[:0]
	for _, w := range wallets {
		if w != exchangeID {
			kept = append(kept, w)
		}
	}
	if err := m.saveWallets(kept); err != nil {
		return err
	}
	if m.activeExchange() == exchangeID {
		if err := m.store.Delete(activeExchangeKey); err != nil {
			m.l.Warn("clear active exchange", zap.Error(err))
		}
	}
	if m.mirror != nil {
		if err := m.mirror.DeleteUserExchange(ctx, exchangeID); err != nil {
			m.l.Warn("mirror exchange removal", zap.String("exchange", exchangeID), zap.Error(err))
		}
	}

	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()
	if current.Active && current.Mode == domain.ModeLive && current.ExchangeID == exchangeID {
		return m.SwitchMode(ctx, false)
	}
	return nil
}

// Wallets lists exchange ids with stored credentials.
func (m *Manager) Wallets() []string {
	raw, found, err := m.store.Get(walletsKey)
	if err != nil {
		m.l.Warn("read wallet list", zap.Error(err))
		return nil
	}
	if !found || len(raw) == 0 {
		return nil
	}
	var wallets []string
	if err := json.Unmarshal(raw, &wallets); err != nil {
		m.l.Warn("decode wallet list", zap.Error(err))
		return nil
	}
	return wallets
}

// Active returns the current session and its connector. Before initialization
// the session is inactive and the connector nil.
func (m *Manager) Active() (domain.ExchangeSession, connector.Connector) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.conn
}

func (m *Manager) Mode() domain.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.Active {
		return domain.ModeDemo
	}
	return m.session.Mode
}

// loadCredentials returns nil when nothing usable is stored. Decryption failures
// are logged and treated as absent credentials.
func (m *Manager) loadCredentials(exchangeID string) *domain.Credential {
	blob, found, err := m.store.Get(credKeyPrefix + exchangeID)
	if err != nil {
		m.l.Warn("read stored credentials", zap.String("exchange", exchangeID), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	cred, err := m.vault.Open(exchangeID, string(blob))
	if err != nil {
		m.l.Warn("stored credentials cannot be decrypted, treating as absent",
			zap.String("exchange", exchangeID), zap.Error(err))
		return nil
	}
	if err := cred.Validate(); err != nil {
		m.l.Warn("stored credentials are incomplete", zap.String("exchange", exchangeID), zap.Error(err))
		return nil
	}
	return &cred
}

func (m *Manager) hasStored(exchangeID string) bool {
	_, found, err := m.store.Get(credKeyPrefix + exchangeID)
	return err == nil && found
}

func (m *Manager) activeExchange() string {
	raw, found, err := m.store.Get(activeExchangeKey)
	if err != nil || !found {
		return ""
	}
	return string(raw)
}

func (m *Manager) saveWallets(wallets []string) error {
	sort.Strings(wallets)
	raw, err := json.Marshal(wallets)
	if err != nil {
		return errors.Wrap(err, "encode wallet list")
	}
	return errors.Wrap(m.store.Set(walletsKey, raw), "store wallet list")
}

func (m *Manager) mirrorUpsert(ctx context.Context, exchangeID string, active bool) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.UpsertUserExchange(ctx, exchangeID, active, m.clock.Now()); err != nil {
		m.l.Warn("mirror exchange", zap.String("exchange", exchangeID), zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
