package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores snapshots in Redis with per-key TTLs.
type RedisKV struct {
	rdb *redis.Client
}

func NewRedisKV(rdb *redis.Client) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func entryKey(key string) string {
	return "consilium:idem:" + key
}

func (r *RedisKV) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	data, err := r.rdb.GetEx(ctx, entryKey(key), ttl).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, entryKey(key), value, ttl).Err()
}
