package idempotency

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	data   []byte
	expiry time.Time
}

// MemoryKV is a single-process KV for tests and nil-Redis mode.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (m *MemoryKV) Get(_ context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || m.now().After(e.expiry) {
		delete(m.entries, key)
		return nil, false, nil
	}
	e.expiry = m.now().Add(ttl)
	m.entries[key] = e
	return e.data, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{data: value, expiry: m.now().Add(ttl)}
	return nil
}
