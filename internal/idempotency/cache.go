package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/af-corp/consilium/internal/types"
)

// KV is the snapshot store. Get extends the entry's TTL on hit so identical
// retries keep the entry warm within its day bucket.
type KV interface {
	Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Fingerprint derives a stable key from the caller, the normalized prompt,
// the model, and a day-level time bucket. Identical retries within the same
// day deduplicate; the keyspace does not grow unbounded across days.
func Fingerprint(callerID, prompt, model string, now time.Time) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	bucket := now.UTC().Format("2006-01-02")

	h := sha256.New()
	h.Write([]byte(callerID))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(bucket))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache memoizes generation responses by fingerprint. It is best-effort
// deduplication, not exactly-once: two near-simultaneous first requests may
// both execute, and the budget check still applies to each.
type Cache struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

func NewCache(kv KV, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{kv: kv, ttl: ttl, logger: logger}
}

// Get returns the memoized response marked cached, or nil on miss.
// Store errors are treated as misses.
func (c *Cache) Get(ctx context.Context, key string) *types.GenerationResponse {
	data, ok, err := c.kv.Get(ctx, key, c.ttl)
	if err != nil {
		c.logger.Warn("idempotency cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var resp types.GenerationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("idempotency cache entry corrupt", "key", key, "error", err)
		return nil
	}
	resp.Cached = true
	return &resp
}

// Put stores the response snapshot under the fingerprint. Callers must Put
// before returning a fresh response so later duplicates are satisfied here.
func (c *Cache) Put(ctx context.Context, key string, resp *types.GenerationResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("store idempotency entry: %w", err)
	}
	return nil
}
