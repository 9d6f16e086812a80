package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/af-corp/consilium/internal/types"
)

// MemoryStore is a single-process RecordStore for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*types.PipelineRecord

	// FailSave forces Save to error, for exercising persistence-fatal paths.
	FailSave bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*types.PipelineRecord)}
}

func (m *MemoryStore) Save(_ context.Context, record *types.PipelineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave {
		return fmt.Errorf("save %s: store unavailable", record.TraceID)
	}
	copied := *record
	m.records[record.TraceID] = &copied
	return nil
}

func (m *MemoryStore) Get(_ context.Context, traceID string) (*types.PipelineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[traceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, traceID)
	}
	copied := *r
	return &copied, nil
}
