package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

// BinanceClients spot/margin and USDT-M futures clients sharing one key pair.
type BinanceClients struct {
	Spot    *binance.Client
	Futures *futures.Client
}

func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	return client
}

// NewBinanceClients builds both clients. Testnet switches the package-level endpoints.
func NewBinanceClients(apiKey, apiSecret string, testnet bool) *BinanceClients {
	if testnet {
		binance.UseTestnet = true
		futures.UseTestnet = true
	}
	return &BinanceClients{
		Spot:    NewBinanceClient(apiKey, apiSecret),
		Futures: binance.NewFuturesClient(apiKey, apiSecret),
	}
}
