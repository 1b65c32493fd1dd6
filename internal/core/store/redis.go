package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/core"
)

const (
	defaultRedisPrefix = "guildrest:bucket:"

	// redisRetention keeps snapshots around for the admin listing long after
	// their window closed.
	redisRetention = 24 * time.Hour
)

// saveScript writes a snapshot unless a newer one from another process is
// already stored, and indexes the key.
var saveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and decoded.updated_ms and tonumber(decoded.updated_ms) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
return 1
`)

type redisRecord struct {
	State     core.BucketState `json:"state"`
	UpdatedMS int64            `json:"updated_ms"`
}

// RedisStore shares bucket snapshots between processes through redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// OpenRedis connects to the configured redis server.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return NewRedisStore(client, cfg.Prefix), nil
}

// NewRedisStore wraps an existing client. An empty prefix uses the default.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: slotPrefix(prefix)}
}

// slotPrefix wraps prefix in a cluster hash tag so the index and every
// snapshot share one slot. Bucket keys carry braces of their own
// ({guild.id}) that would otherwise pick the slot.
func slotPrefix(prefix string) string {
	if strings.HasPrefix(prefix, "{") && strings.Contains(prefix, "}") {
		return prefix
	}
	return "{" + strings.TrimSuffix(prefix, ":") + "}:"
}

func (r *RedisStore) stateKey(key string) string {
	return r.prefix + key
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "_index"
}

// LoadBucket returns the stored state for a bucket key, or nil when none.
func (r *RedisStore) LoadBucket(ctx context.Context, key string) (*core.BucketState, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("bucket key is required")
	}

	raw, err := r.client.Get(ctx, r.stateKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch bucket state: %w", err)
	}

	var record redisRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode bucket state: %w", err)
	}
	return &record.State, nil
}

// SaveBucket stores the state unless a newer snapshot is already present.
func (r *RedisStore) SaveBucket(ctx context.Context, key string, state *core.BucketState) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("bucket key is required")
	}
	if state == nil {
		return errors.New("bucket state is required")
	}

	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	record := redisRecord{State: *state, UpdatedMS: updated.UnixMilli()}
	record.State.UpdatedAt = updated

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode bucket state: %w", err)
	}

	err = saveScript.Run(ctx, r.client,
		[]string{r.stateKey(key), r.indexKey()},
		string(payload), record.UpdatedMS, redisRetention.Milliseconds(), key,
	).Err()
	if err != nil {
		return fmt.Errorf("store bucket state: %w", err)
	}
	return nil
}

// ListBuckets returns stored snapshots ordered by key. Index entries whose
// snapshot expired are pruned.
func (r *RedisStore) ListBuckets(ctx context.Context, q BucketQuery) ([]BucketEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	keys, err := r.matchingKeys(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []BucketEntry{}, nil
	}

	stateKeys := make([]string, len(keys))
	for i, key := range keys {
		stateKeys[i] = r.stateKey(key)
	}
	values, err := r.client.MGet(ctx, stateKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list bucket states: %w", err)
	}

	entries := make([]BucketEntry, 0, len(keys))
	var stale []any
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var record redisRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode bucket state %s: %w", keys[i], err)
		}
		entries = append(entries, BucketEntry{Key: keys[i], State: record.State})
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, r.indexKey(), stale...).Err()
	}

	return entries, nil
}

// ResetBuckets deletes the selected snapshots.
func (r *RedisStore) ResetBuckets(ctx context.Context, q BucketQuery) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	keys, err := r.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	stateKeys := make([]string, len(keys))
	members := make([]any, len(keys))
	for i, key := range keys {
		stateKeys[i] = r.stateKey(key)
		members[i] = key
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, stateKeys...)
		pipe.SRem(ctx, r.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset bucket states: %w", err)
	}
	return deleted.Val(), nil
}

func (r *RedisStore) matchingKeys(ctx context.Context, q BucketQuery) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read bucket index: %w", err)
	}

	keys := members[:0]
	for _, key := range members {
		if q.Match(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Migrate is a no-op; redis needs no schema.
func (r *RedisStore) Migrate(context.Context) error {
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Driver() string {
	return driverRedis
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
