package sqlstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// UserExchange an exchange the user has stored credentials for.
type UserExchange struct {
	ExchangeID string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpsertUserExchange records the exchange. Marking one active clears the flag on the others.
func (s *Store) UpsertUserExchange(ctx context.Context, exchangeID string, active bool, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert user exchange")
	}
	defer func() { _ = tx.Rollback() }()

	if active {
		if _, err := tx.ExecContext(ctx, `UPDATE user_exchanges SET active=0 WHERE exchange_id<>?`, exchangeID); err != nil {
			return errors.Wrap(err, "clear active exchange")
		}
	}
	ts := formatTS(at)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_exchanges (exchange_id, active, created_at, updated_at)
VALUES (?,?,?,?)
ON CONFLICT(exchange_id) DO UPDATE SET active=excluded.active, updated_at=excluded.updated_at
`, exchangeID, boolToInt(active), ts, ts); err != nil {
		return errors.Wrap(err, "upsert user exchange")
	}
	return errors.Wrap(tx.Commit(), "commit user exchange")
}

func (s *Store) DeleteUserExchange(ctx context.Context, exchangeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_exchanges WHERE exchange_id=?`, exchangeID)
	return errors.Wrap(err, "delete user exchange")
}

func (s *Store) ListUserExchanges(ctx context.Context) ([]UserExchange, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT exchange_id, active, created_at, updated_at
FROM user_exchanges
ORDER BY exchange_id
`)
	if err != nil {
		return nil, errors.Wrap(err, "list user exchanges")
	}
	defer rows.Close()

	var out []UserExchange
	for rows.Next() {
		var (
			ue                   UserExchange
			active               int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&ue.ExchangeID, &active, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan user exchange")
		}
		ue.Active = active != 0
		ue.CreatedAt = parseTS(createdAt)
		ue.UpdatedAt = parseTS(updatedAt)
		out = append(out, ue)
	}
	return out, errors.Wrap(rows.Err(), "iterate user exchanges")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
