// Package domain defines core data structures shared by the exchange gateway services.
package domain

import (
	"fmt"
	"strings"
)

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD"}

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// ParsePair accepts BTC/USDT, BTC_USDT, BTC-USDT and BTCUSDT forms.
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, sep := range []string{"/", "_", "-"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			if parts[0] == "" || parts[1] == "" {
				return Pair{}, Errorf(ErrValidation, "invalid pair %q", s)
			}
			return Pair{From: parts[0], To: parts[1]}, nil
		}
	}
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return Pair{From: strings.TrimSuffix(s, q), To: q}, nil
		}
	}
	return Pair{}, Errorf(ErrValidation, "invalid pair %q", s)
}

// String returns the unified BASE/QUOTE form.
func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// IsStablecoin reports whether the asset is valued 1:1 against USDT.
func IsStablecoin(asset string) bool {
	switch strings.ToUpper(asset) {
	case "USDT", "USDC", "BUSD", "USD", "FDUSD", "DAI":
		return true
	}
	return false
}
