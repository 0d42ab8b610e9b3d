package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/exgate/internal/domain"
)

// UpsertStrategy registers a strategy or renames an existing one.
func (s *Store) UpsertStrategy(ctx context.Context, id, name string, at time.Time) error {
	if id == "" {
		return domain.Errorf(domain.ErrValidation, "strategy id is required")
	}
	ts := formatTS(at)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO strategies (id, name, created_at, updated_at)
VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, updated_at=excluded.updated_at
`, id, name, ts, ts)
	return errors.Wrap(err, "upsert strategy")
}

func (s *Store) UpsertBudget(ctx context.Context, b domain.StrategyBudget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO strategy_budgets (strategy_id, total, allocated, available, max_position_size, updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(strategy_id) DO UPDATE SET
  total=excluded.total,
  allocated=excluded.allocated,
  available=excluded.available,
  max_position_size=excluded.max_position_size,
  updated_at=excluded.updated_at
`, b.StrategyID, b.Total.String(), b.Allocated.String(), b.Available.String(), b.MaxPosSize.String(), formatTS(b.UpdatedAt))
	return errors.Wrap(err, "upsert budget")
}

// GetBudget returns the current budget and whether the strategy has one.
func (s *Store) GetBudget(ctx context.Context, strategyID string) (domain.StrategyBudget, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT strategy_id, total, allocated, available, max_position_size, updated_at
FROM strategy_budgets
WHERE strategy_id=?
`, strategyID)

	var (
		b                                   domain.StrategyBudget
		total, allocated, available, maxPos string
		updatedAt                           string
	)
	if err := row.Scan(&b.StrategyID, &total, &allocated, &available, &maxPos, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StrategyBudget{}, false, nil
		}
		return domain.StrategyBudget{}, false, errors.Wrap(err, "get budget")
	}
	b.Total = decimalOrZero(total)
	b.Allocated = decimalOrZero(allocated)
	b.Available = decimalOrZero(available)
	b.MaxPosSize = decimalOrZero(maxPos)
	b.UpdatedAt = parseTS(updatedAt)
	return b, true, nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
