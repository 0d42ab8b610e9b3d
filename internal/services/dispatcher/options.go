package dispatcher

import "time"

const (
	defaultBurst          = 5
	defaultRefillInterval = 2 * time.Second
	defaultMaxConcurrent  = 10
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultBackoffInitial = 500 * time.Millisecond
	defaultBackoffMax     = 10 * time.Second
)

// Settings dispatcher tuning. Zero fields fall back to defaults.
type Settings struct {
	Burst          int
	RefillInterval time.Duration
	MaxConcurrent  int
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// DefaultSettings returns the production limits.
func DefaultSettings() Settings {
	return Settings{
		Burst:          defaultBurst,
		RefillInterval: defaultRefillInterval,
		MaxConcurrent:  defaultMaxConcurrent,
		Timeout:        defaultTimeout,
		MaxRetries:     defaultMaxRetries,
		BackoffInitial: defaultBackoffInitial,
		BackoffMax:     defaultBackoffMax,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Burst < 1 {
		s.Burst = d.Burst
	}
	if s.RefillInterval <= 0 {
		s.RefillInterval = d.RefillInterval
	}
	if s.MaxConcurrent < 1 {
		s.MaxConcurrent = d.MaxConcurrent
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.BackoffInitial <= 0 {
		s.BackoffInitial = d.BackoffInitial
	}
	if s.BackoffMax <= 0 {
		s.BackoffMax = d.BackoffMax
	}
	return s
}

// Option overrides a single setting.
type Option func(*Settings)

// WithBurst sets the token bucket capacity.
func WithBurst(n int) Option {
	return func(s *Settings) { s.Burst = n }
}

// WithRefillInterval sets how long one token takes to refill.
func WithRefillInterval(d time.Duration) Option {
	return func(s *Settings) { s.RefillInterval = d }
}

// WithMaxConcurrent bounds the number of in-flight operations.
func WithMaxConcurrent(n int) Option {
	return func(s *Settings) { s.MaxConcurrent = n }
}

// WithTimeout sets the per-operation deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Settings) { s.Timeout = d }
}

// WithMaxRetries sets the retry ceiling for transient failures.
func WithMaxRetries(n int) Option {
	return func(s *Settings) { s.MaxRetries = n }
}

// WithBackoff sets the initial and maximum backoff interval.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Settings) {
		s.BackoffInitial = initial
		s.BackoffMax = max
	}
}

// WithSettings replaces all settings at once.
func WithSettings(settings Settings) Option {
	return func(s *Settings) { *s = settings }
}
