package domain

// Mode is the session mode threaded from the session manager into its consumers.
type Mode string

const (
	// ModeLive talks to a real exchange with stored credentials.
	ModeLive Mode = "live"
	// ModeDemo uses the built-in deterministic exchange.
	ModeDemo Mode = "demo"
)

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// IsDemo reports whether m is the demo mode. The zero value counts as demo.
func (m Mode) IsDemo() bool {
	return m != ModeLive
}
