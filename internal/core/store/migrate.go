package store

import (
	"context"
	"errors"
	"fmt"
)

// migrations apply in order. PRAGMA user_version records how many have run,
// so entries are append-only.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS bucket_states (
		bucket_key TEXT PRIMARY KEY,
		bucket_hash TEXT,
		bucket_limit INTEGER NOT NULL DEFAULT 0,
		remaining INTEGER NOT NULL DEFAULT 0,
		reset_at INTEGER,
		last_429_at INTEGER,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bucket_states_reset ON bucket_states(reset_at)`,
}

// Migrate brings the schema up to date. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	applied, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	for i := applied; i < len(migrations); i++ {
		if err := s.apply(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) apply(ctx context.Context, index int) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store migration %d: %w", index+1, err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, migrations[index]); err != nil {
		return fmt.Errorf("store migration %d failed: %w", index+1, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", index+1)); err != nil {
		return fmt.Errorf("store migration %d: record version: %w", index+1, err)
	}
	return tx.Commit()
}
