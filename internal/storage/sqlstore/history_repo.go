package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 5000
)

const historyColumns = `id, strategy_id, total, allocated, available, profit, change_type, change_amount, trade_id, ts`

// InsertHistory appends a ledger entry. Entries are immutable; re-inserting an id fails.
func (s *Store) InsertHistory(ctx context.Context, e domain.BudgetHistoryEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		return domain.Errorf(domain.ErrValidation, "history entry id is required")
	}
	var tradeID sql.NullString
	if e.TradeID != "" {
		tradeID = sql.NullString{String: e.TradeID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO budget_history (`+historyColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, e.ID, e.StrategyID, e.Total.String(), e.Allocated.String(), e.Available.String(), e.Profit.String(),
		string(e.ChangeType), e.ChangeAmount.String(), tradeID, formatTS(e.Timestamp))
	return errors.Wrap(err, "insert budget history")
}

// ListHistory returns the newest entries first.
func (s *Store) ListHistory(ctx context.Context, strategyID string, limit int) ([]domain.BudgetHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+historyColumns+`
FROM budget_history
WHERE strategy_id=?
ORDER BY ts DESC, id DESC
LIMIT ?
`, strategyID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list budget history")
	}
	return scanHistory(rows)
}

// ListHistorySince returns entries at or after since, oldest first.
func (s *Store) ListHistorySince(ctx context.Context, strategyID string, since time.Time) ([]domain.BudgetHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+historyColumns+`
FROM budget_history
WHERE strategy_id=? AND ts>=?
ORDER BY ts ASC, id ASC
`, strategyID, formatTS(since))
	if err != nil {
		return nil, errors.Wrap(err, "list budget history since")
	}
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]domain.BudgetHistoryEntry, error) {
	defer rows.Close()

	var out []domain.BudgetHistoryEntry
	for rows.Next() {
		var (
			e                                                     domain.BudgetHistoryEntry
			total, allocated, available, profit, changeAmount, ts string
			changeType                                            string
			tradeID                                               sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.StrategyID, &total, &allocated, &available, &profit,
			&changeType, &changeAmount, &tradeID, &ts); err != nil {
			return nil, errors.Wrap(err, "scan budget history")
		}
		e.Total = decimalOrZero(total)
		e.Allocated = decimalOrZero(allocated)
		e.Available = decimalOrZero(available)
		e.Profit = decimalOrZero(profit)
		e.ChangeType = domain.ChangeType(changeType)
		e.ChangeAmount = decimalOrZero(changeAmount)
		e.TradeID = tradeID.String
		e.Timestamp = parseTS(ts)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate budget history")
}
