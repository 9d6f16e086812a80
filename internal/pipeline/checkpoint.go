package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/consilium/internal/types"
)

// Checkpoint is the accumulated run state after a stage, kept for crash
// diagnosis. It is advisory: runs never resume from a checkpoint.
type Checkpoint struct {
	Stage     string                `json:"stage"`
	Record    *types.PipelineRecord `json:"record"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// CheckpointStore saves per-run stage checkpoints. Save errors are swallowed
// by the orchestrator; a lost checkpoint never fails a run.
type CheckpointStore interface {
	Save(ctx context.Context, stage string, record *types.PipelineRecord) error
	Load(ctx context.Context, traceID string) (*Checkpoint, error)
	Clear(ctx context.Context, traceID string) error
}

// RedisCheckpoints keeps checkpoints in Redis with a TTL so abandoned runs
// clean themselves up.
type RedisCheckpoints struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCheckpoints(rdb *redis.Client, ttl time.Duration) *RedisCheckpoints {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCheckpoints{rdb: rdb, ttl: ttl}
}

func checkpointKey(traceID string) string {
	return "consilium:checkpoint:" + traceID
}

func (c *RedisCheckpoints) Save(ctx context.Context, stage string, record *types.PipelineRecord) error {
	data, err := json.Marshal(Checkpoint{
		Stage:     stage,
		Record:    record,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := c.rdb.Set(ctx, checkpointKey(record.TraceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", record.TraceID, err)
	}
	return nil
}

func (c *RedisCheckpoints) Load(ctx context.Context, traceID string) (*Checkpoint, error) {
	data, err := c.rdb.Get(ctx, checkpointKey(traceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", traceID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", traceID, err)
	}
	return &cp, nil
}

func (c *RedisCheckpoints) Clear(ctx context.Context, traceID string) error {
	return c.rdb.Del(ctx, checkpointKey(traceID)).Err()
}

// memCheckpoints backs tests.
type memCheckpoints struct {
	saved map[string][]Checkpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{saved: make(map[string][]Checkpoint)}
}

func (m *memCheckpoints) Save(_ context.Context, stage string, record *types.PipelineRecord) error {
	copied := *record
	m.saved[record.TraceID] = append(m.saved[record.TraceID], Checkpoint{
		Stage:     stage,
		Record:    &copied,
		UpdatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memCheckpoints) Load(_ context.Context, traceID string) (*Checkpoint, error) {
	cps := m.saved[traceID]
	if len(cps) == 0 {
		return nil, nil
	}
	cp := cps[len(cps)-1]
	return &cp, nil
}

func (m *memCheckpoints) Clear(_ context.Context, traceID string) error {
	delete(m.saved, traceID)
	return nil
}
