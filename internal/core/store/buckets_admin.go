package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/namelens/guildrest/internal/core"
)

// BucketEntry pairs a bucket key with its persisted state.
type BucketEntry struct {
	Key   string           `json:"key"`
	State core.BucketState `json:"state"`
}

// BucketQuery selects buckets for the admin commands.
type BucketQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q BucketQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

// Match reports whether key is selected by q.
func (q BucketQuery) Match(key string) bool {
	switch {
	case q.All:
		return true
	case strings.TrimSpace(q.Key) != "":
		return key == strings.TrimSpace(q.Key)
	default:
		return strings.HasPrefix(key, strings.TrimSpace(q.Prefix))
	}
}

func (q BucketQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE bucket_key = ?", []any{key}, nil
	}
	return "WHERE bucket_key LIKE ? ESCAPE '\\'", []any{escapeLike(strings.TrimSpace(q.Prefix)) + "%"}, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (s *Store) ListBuckets(ctx context.Context, q BucketQuery) ([]BucketEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT bucket_key, bucket_hash, bucket_limit, remaining, reset_at, last_429_at, updated_at
		FROM bucket_states
		%s
		ORDER BY bucket_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list bucket states: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []BucketEntry{}
	for rows.Next() {
		entry, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bucket states: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bucket states: %w", err)
	}

	return entries, nil
}

func (s *Store) ResetBuckets(ctx context.Context, q BucketQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM bucket_states
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset bucket states: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset bucket states: %w", err)
	}
	return affected, nil
}
