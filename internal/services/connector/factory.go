package connector

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/clients"
	"github.com/vadiminshakov/exgate/internal/domain"
	"go.uber.org/zap"
)

// ErrUnsupportedExchange is returned by New for unknown exchange ids.
var ErrUnsupportedExchange = errors.New("unsupported exchange")

// Options exchange endpoint settings.
type Options struct {
	Testnet bool
	// BaseURL overrides the REST endpoint where the SDK allows it.
	BaseURL string
	Clock   clockwork.Clock
}

// New builds the connector for the exchange id. The demo connector ignores
// credentials; every other exchange requires them. For hyperliquid the API key is
// the account address and the secret is the signing key.
func New(ctx context.Context, id string, cred *domain.Credential, opts Options, l *zap.Logger) (Connector, error) {
	if l == nil {
		l = zap.NewNop()
	}
	id = strings.ToLower(strings.TrimSpace(id))
	l = l.With(zap.String("exchange", id))

	if id == ExchangeDemo {
		return NewDemo(opts.Clock, l), nil
	}
	if cred == nil {
		return nil, domain.Errorf(domain.ErrAuthentication, "%s requires credentials", id)
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	switch id {
	case ExchangeBinance:
		return NewBinance(clients.NewBinanceClients(cred.APIKey, cred.Secret, opts.Testnet), l), nil
	case ExchangeBybit:
		return NewBybit(clients.NewBybitClient(cred.APIKey, cred.Secret), l), nil
	case ExchangeHyperliquid:
		client, err := clients.NewHyperliquidClient(ctx, cred.Secret, cred.APIKey, opts.BaseURL)
		if err != nil {
			return nil, domain.NewError(domain.ErrAuthentication, errors.Wrap(err, "hyperliquid client"))
		}
		return NewHyperliquid(client, l), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedExchange, "%q", id)
	}
}

// Supported lists the exchange ids New accepts.
func Supported() []string {
	return []string{ExchangeBinance, ExchangeBybit, ExchangeHyperliquid, ExchangeDemo}
}
