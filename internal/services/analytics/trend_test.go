package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
)

func days(profits ...int64) []domain.DailyAggregate {
	out := make([]domain.DailyAggregate, len(profits))
	for i, p := range profits {
		out[i] = domain.DailyAggregate{Profit: decimal.NewFromInt(p)}
	}
	return out
}

func TestProfitTrend(t *testing.T) {
	t.Run("flat profit stays flat", func(t *testing.T) {
		got, err := ProfitTrend(days(10, 10, 10, 10, 10), 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, v := range got {
			assert.True(t, v.Equal(decimal.NewFromInt(10)), v.String())
		}
	})

	t.Run("rising profit trends up", func(t *testing.T) {
		got, err := ProfitTrend(days(0, 10, 20, 30, 40, 50), 2)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].GreaterThan(got[i-1]))
		}
	})

	t.Run("too few days", func(t *testing.T) {
		_, err := ProfitTrend(days(1, 2), 7)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
