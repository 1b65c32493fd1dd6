package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/namelens/guildrest/internal/core"
)

// LoadBucket returns the stored state for a bucket key, or nil when none.
func (s *Store) LoadBucket(ctx context.Context, key string) (*core.BucketState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("bucket key is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT bucket_key, bucket_hash, bucket_limit, remaining, reset_at, last_429_at, updated_at
		FROM bucket_states
		WHERE bucket_key = ?
	`, key)

	entry, err := scanBucket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch bucket state: %w", err)
	}
	return &entry.State, nil
}

// SaveBucket upserts the state for a bucket key.
func (s *Store) SaveBucket(ctx context.Context, key string, state *core.BucketState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("bucket key is required")
	}
	if state == nil {
		return errors.New("bucket state is required")
	}

	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var last429At sql.NullInt64
	if state.Last429At != nil {
		last429At = sql.NullInt64{Int64: state.Last429At.UnixMilli(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO bucket_states (bucket_key, bucket_hash, bucket_limit, remaining, reset_at, last_429_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket_key) DO UPDATE SET
			bucket_hash = excluded.bucket_hash,
			bucket_limit = excluded.bucket_limit,
			remaining = excluded.remaining,
			reset_at = excluded.reset_at,
			last_429_at = excluded.last_429_at,
			updated_at = excluded.updated_at
	`, key, nullString(state.Bucket), state.Limit, state.Remaining, nullMillis(state.ResetAt), last429At, updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store bucket state: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (BucketEntry, error) {
	var (
		key       string
		hash      sql.NullString
		limit     int
		remaining int
		resetAt   sql.NullInt64
		last429At sql.NullInt64
		updatedAt int64
	)
	if err := row.Scan(&key, &hash, &limit, &remaining, &resetAt, &last429At, &updatedAt); err != nil {
		return BucketEntry{}, err
	}

	state := core.BucketState{
		Limit:     limit,
		Remaining: remaining,
		Bucket:    hash.String,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}
	if resetAt.Valid {
		state.ResetAt = time.UnixMilli(resetAt.Int64).UTC()
	}
	if last429At.Valid {
		value := time.UnixMilli(last429At.Int64).UTC()
		state.Last429At = &value
	}

	return BucketEntry{Key: key, State: state}, nil
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
