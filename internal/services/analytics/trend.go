package analytics

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
)

// DefaultTrendPeriod smoothing window of ProfitTrend in days.
const DefaultTrendPeriod = 7

// ProfitTrend smooths the daily realised profit with an exponential moving
// average. The first value covers days[0:period].
func ProfitTrend(days []domain.DailyAggregate, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		period = DefaultTrendPeriod
	}
	if len(days) < period {
		return nil, domain.Errorf(domain.ErrValidation, "not enough days for a %d day trend: got %d", period, len(days))
	}

	profits := make([]float64, len(days))
	for i, d := range days {
		profits[i], _ = d.Profit.Float64()
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	out := helper.ChanToSlice(ema.Compute(helper.SliceToChan(profits)))

	res := make([]decimal.Decimal, len(out))
	for i, v := range out {
		res[i] = decimal.NewFromFloat(v).Round(2)
	}
	return res, nil
}
