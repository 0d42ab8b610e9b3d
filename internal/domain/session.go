package domain

import (
	"strings"
	"time"
)

// AccountType wallet account type on an exchange.
type AccountType string

const (
	AccountSpot    AccountType = "spot"
	AccountMargin  AccountType = "margin"
	AccountFutures AccountType = "futures"
)

// AccountTypes lists every account type in display order.
var AccountTypes = []AccountType{AccountSpot, AccountMargin, AccountFutures}

// IsValid checks if the AccountType value is valid.
func (a AccountType) IsValid() bool {
	return a == AccountSpot || a == AccountMargin || a == AccountFutures
}

// Capabilities what the connected exchange supports. Discovered once per session.
type Capabilities struct {
	Margin      bool     `json:"margin"`
	Futures     bool     `json:"futures"`
	WS          bool     `json:"ws"`
	OrderTypes  []string `json:"order_types,omitempty"`
	TimeInForce []string `json:"time_in_force,omitempty"`
}

// AccountTypes returns the account types enabled by the capability set.
func (c Capabilities) AccountTypes() []AccountType {
	types := []AccountType{AccountSpot}
	if c.Margin {
		types = append(types, AccountMargin)
	}
	if c.Futures {
		types = append(types, AccountFutures)
	}
	return types
}

// Supports reports whether the account type is available.
func (c Capabilities) Supports(t AccountType) bool {
	switch t {
	case AccountSpot:
		return true
	case AccountMargin:
		return c.Margin
	case AccountFutures:
		return c.Futures
	}
	return false
}

// ExchangeSession the single active exchange configuration.
type ExchangeSession struct {
	ID           string       `json:"id"`
	ExchangeID   string       `json:"exchange_id"`
	Mode         Mode         `json:"mode"`
	Capabilities Capabilities `json:"capabilities"`
	Active       bool         `json:"active"`
	StartedAt    time.Time    `json:"started_at"`
}

// Credential exchange API credentials. Only ever persisted encrypted.
type Credential struct {
	APIKey     string `json:"api_key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase,omitempty"`
	Memo       string `json:"memo,omitempty"`
}

// Validate checks that key and secret are present.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return Errorf(ErrValidation, "api key is required")
	}
	if strings.TrimSpace(c.Secret) == "" {
		return Errorf(ErrValidation, "api secret is required")
	}
	return nil
}

// String hides the secret parts.
func (c Credential) String() string {
	key := c.APIKey
	if len(key) > 4 {
		key = key[:4] + "..."
	}
	return "Credential{" + key + "}"
}
