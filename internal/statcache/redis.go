package statcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared Redis cache backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisBackend stores each entry as a hash and tracks keys in an index set
// so InvalidateAll does not need SCAN.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects and pings Redis.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "eventtriage:stats"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis stat cache: %w", err)
	}
	return &RedisBackend{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	hash, err := r.client.HGetAll(ctx, r.entryKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read stat cache entry: %w", err)
	}
	if len(hash) == 0 {
		return Entry{}, false, nil
	}
	computed, err := strconv.ParseInt(hash["computed_at"], 10, 64)
	if err != nil {
		return Entry{}, false, nil
	}
	return Entry{Value: []byte(hash["value"]), ComputedAt: time.UnixMilli(computed).UTC()}, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, e Entry) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.entryKey(key),
		"value", e.Value,
		"computed_at", strconv.FormatInt(e.ComputedAt.UnixMilli(), 10),
	)
	pipe.SAdd(ctx, r.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write stat cache entry: %w", err)
	}
	return nil
}

// deleteAllScript drops the index and every entry it names in one step, so a
// concurrent Set either lands before and is deleted or after and stays indexed.
var deleteAllScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
for _, m in ipairs(members) do
  redis.call('DEL', ARGV[1] .. m)
end
redis.call('DEL', KEYS[1])
return #members
`)

func (r *RedisBackend) DeleteAll(ctx context.Context) error {
	if err := deleteAllScript.Run(ctx, r.client, []string{r.indexKey()}, r.entryKey("")).Err(); err != nil {
		return fmt.Errorf("delete stat cache entries: %w", err)
	}
	return nil
}

// Close closes Redis resources.
func (r *RedisBackend) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisBackend) entryKey(key string) string {
	return r.prefix + ":entry:" + key
}

func (r *RedisBackend) indexKey() string {
	return r.prefix + ":keys"
}
