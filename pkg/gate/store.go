package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists functioning records. Writes per identity serialize
// behind one lock so a registration refresh cannot race a completion update.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore migrates the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS validators (
		hotkey TEXT PRIMARY KEY,
		base_url TEXT NOT NULL DEFAULT '',
		registered_at DATETIME NOT NULL,
		last_completion_at DATETIME
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("gate: migrate: %w", err)
	}
	return nil
}

// Get loads one validator's record.
func (s *SQLiteStore) Get(ctx context.Context, hotkey string) (FunctioningRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hotkey, base_url, registered_at, last_completion_at FROM validators WHERE hotkey = ?`, hotkey)
	var record FunctioningRecord
	var last sql.NullTime
	if err := row.Scan(&record.Hotkey, &record.BaseURL, &record.RegisteredAt, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FunctioningRecord{}, fmt.Errorf("%w: %s", ErrUnknownValidator, hotkey)
		}
		return FunctioningRecord{}, fmt.Errorf("gate: get: %w", err)
	}
	if last.Valid {
		t := last.Time
		record.LastCompletionAt = &t
	}
	return record, nil
}

// Register upserts the registration fields only. last_completion_at is
// deliberately left alone on conflict.
func (s *SQLiteStore) Register(ctx context.Context, hotkey, baseURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validators (hotkey, base_url, registered_at) VALUES (?, ?, ?)
		 ON CONFLICT(hotkey) DO UPDATE SET base_url = excluded.base_url, registered_at = excluded.registered_at`,
		hotkey, baseURL, at.UTC())
	if err != nil {
		return fmt.Errorf("gate: register: %w", err)
	}
	return nil
}

// RecordCompletion stamps a finished batch for a registered validator.
func (s *SQLiteStore) RecordCompletion(ctx context.Context, hotkey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE validators SET last_completion_at = ? WHERE hotkey = ?`, at.UTC(), hotkey)
	if err != nil {
		return fmt.Errorf("gate: record completion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("gate: record completion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, hotkey)
	}
	return nil
}
