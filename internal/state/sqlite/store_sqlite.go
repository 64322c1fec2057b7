package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"hl-basis-bot/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS trade_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			asset TEXT NOT NULL,
			intent TEXT NOT NULL,
			leg TEXT NOT NULL,
			is_buy INTEGER NOT NULL,
			notional_usd REAL NOT NULL,
			run_id TEXT NOT NULL,
			slice INTEGER NOT NULL,
			slice_count INTEGER NOT NULL,
			client_order_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) Append(ctx context.Context, event state.TradeEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_journal (time, asset, intent, leg, is_buy, notional_usd, run_id, slice, slice_count, client_order_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		event.Asset,
		event.Intent,
		event.Leg,
		boolToInt(event.IsBuy),
		event.NotionalUSD,
		event.RunID,
		event.Slice,
		event.SliceCount,
		event.ClientOrderID,
	)
	return err
}

// JournalCount is used by tests and the operator status output.
func (s *Store) JournalCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trade_journal`).Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
