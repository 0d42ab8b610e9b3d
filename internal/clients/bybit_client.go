package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient returns an authenticated client, or a public one when no key is given.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	client := bybit.NewClient()
	if apiKey == "" {
		return client
	}

	return client.WithAuth(apiKey, apiSecret)
}
