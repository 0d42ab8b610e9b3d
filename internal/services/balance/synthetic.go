package balance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/exgate/internal/services/connector"
)

// Synthetic values the demo wallets at the fixed demo prices. Every account type
// is populated, so a demo session never shows an empty state.
func Synthetic(at time.Time) domain.MultiWalletBalance {
	return syntheticFrom(connector.DemoWallets(), at)
}

func syntheticFrom(wallets map[domain.AccountType]map[string]decimal.Decimal, at time.Time) domain.MultiWalletBalance {
	snap := domain.MultiWalletBalance{Timestamp: at}
	for _, t := range domain.AccountTypes {
		total := decimal.Zero
		for asset, amount := range wallets[t] {
			total = total.Add(amount.Mul(connector.DemoPrice(asset)))
		}
		snap = snap.With(t, domain.NewAccountBalance(total, decimal.Zero, Quote))
	}
	return snap
}
