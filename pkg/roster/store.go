package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrVersionConflict is returned when a save loses a compare-and-swap race.
var ErrVersionConflict = errors.New("roster: version conflict")

// Store persists the roster in SQLite. A single row carries the triple plus
// a version counter; saves are compare-and-swap on the version so concurrent
// writers cannot silently overwrite each other.
type Store struct {
	db *sql.DB
}

// NewStore migrates the schema and seeds the singleton row.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS roster (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		top_1 TEXT,
		top_2 TEXT,
		top_3 TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO roster (id, version) VALUES (1, 0);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("roster: migrate: %w", err)
	}
	return nil
}

// Load returns the persisted roster and its version.
func (s *Store) Load(ctx context.Context) (State, int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT top_1, top_2, top_3, version FROM roster WHERE id = 1`)
	var top1, top2, top3 sql.NullString
	var version int64
	if err := row.Scan(&top1, &top2, &top3, &version); err != nil {
		return State{}, 0, fmt.Errorf("roster: load: %w", err)
	}
	return State{
		Top1: nullable(top1),
		Top2: nullable(top2),
		Top3: nullable(top3),
	}, version, nil
}

// Save writes the roster if the stored version still matches expected.
func (s *Store) Save(ctx context.Context, state State, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE roster SET top_1 = ?, top_2 = ?, top_3 = ?, version = version + 1
		 WHERE id = 1 AND version = ?`,
		column(state.Top1), column(state.Top2), column(state.Top3), expectedVersion)
	if err != nil {
		return fmt.Errorf("roster: save: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("roster: save: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func column(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
