// Package sqlstore is the relational backend for strategies, budgets, budget
// history and the user's configured exchanges.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// tsLayout fixed-width UTC timestamps so that text ordering is time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates it.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlstore: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS strategies (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS strategy_budgets (
  strategy_id TEXT PRIMARY KEY,
  total TEXT NOT NULL,
  allocated TEXT NOT NULL,
  available TEXT NOT NULL,
  max_position_size TEXT NOT NULL DEFAULT '0',
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS budget_history (
  id TEXT PRIMARY KEY,
  strategy_id TEXT NOT NULL,
  total TEXT NOT NULL,
  allocated TEXT NOT NULL,
  available TEXT NOT NULL,
  profit TEXT NOT NULL DEFAULT '0',
  change_type TEXT NOT NULL,
  change_amount TEXT NOT NULL DEFAULT '0',
  trade_id TEXT,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_budget_history_strategy_ts ON budget_history(strategy_id, ts);`,
		`
CREATE TABLE IF NOT EXISTS user_exchanges (
  exchange_id TEXT PRIMARY KEY,
  active INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
