package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// DefaultHyperliquidURL mainnet API endpoint.
const DefaultHyperliquidURL = "https://api.hyperliquid.xyz"

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient builds an exchange client from a hex private key.
// accountAddr overrides the derived address when trading through an API wallet.
func NewHyperliquidClient(ctx context.Context, privateKeyHex, accountAddr, baseURL string) (*HyperliquidClient, error) {
	key := strings.TrimSpace(privateKeyHex)
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, err
	}

	if accountAddr == "" {
		pubECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("error casting public key to ECDSA")
		}
		accountAddr = crypto.PubkeyToAddress(*pubECDSA).Hex()
	} else if !common.IsHexAddress(accountAddr) {
		return nil, fmt.Errorf("invalid hyperliquid account address %q", accountAddr)
	}

	if baseURL == "" {
		baseURL = DefaultHyperliquidURL
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		ctx,
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

func (c *HyperliquidClient) Exchange() *hyperliquid.Exchange { return c.exchange }
func (c *HyperliquidClient) Info() *hyperliquid.Info         { return c.exchange.Info() }
func (c *HyperliquidClient) AccountAddress() string          { return c.accountAddr }
