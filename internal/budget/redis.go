package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps the daily spend ledger in Redis. Keys expire shortly
// after end of day UTC so the ledger resets at day rollover.
type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func spendKey(provider, day string) string {
	return fmt.Sprintf("consilium:budget:daily:%s:%s", provider, day)
}

func alertKey(provider, day string, threshold float64) string {
	return fmt.Sprintf("consilium:budget:alert:%s:%s:%.2f", provider, day, threshold)
}

func (l *RedisLedger) Spend(ctx context.Context, provider, day string) (float64, error) {
	spend, err := l.rdb.Get(ctx, spendKey(provider, day)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger read %s: %w", provider, err)
	}
	return spend, nil
}

func (l *RedisLedger) Add(ctx context.Context, provider, day string, amountUSD float64, ttl time.Duration) error {
	key := spendKey(provider, day)
	pipe := l.rdb.Pipeline()
	pipe.IncrByFloat(ctx, key, amountUSD)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *RedisLedger) MarkAlert(ctx context.Context, provider, day string, threshold float64, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, alertKey(provider, day, threshold), "1", ttl).Result()
}
