package breaker

import (
	"context"
	"sync"
	"time"
)

// memState mirrors the fields kept in the shared store.
type memState struct {
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// MemoryStore is a single-process StateStore. It backs tests and the
// nil-Redis degraded mode.
type MemoryStore struct {
	mu       sync.Mutex
	services map[string]*memState
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services: make(map[string]*memState),
		now:      time.Now,
	}
}

func (m *MemoryStore) get(service string) *memState {
	s, ok := m.services[service]
	if !ok {
		s = &memState{state: StateClosed}
		m.services[service] = s
	}
	return s
}

func (m *MemoryStore) Acquire(_ context.Context, service string, st Settings) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(service)
	if s.state == StateOpen && m.now().Sub(s.openedAt) >= st.RecoveryTimeout {
		s.state = StateHalfOpen
		s.successes = 0
	}
	return s.state, s.state != StateOpen, nil
}

func (m *MemoryStore) Success(_ context.Context, service string, st Settings) (State, State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(service)
	prev := s.state
	switch s.state {
	case StateHalfOpen:
		s.successes++
		if s.successes >= st.SuccessThreshold {
			s.state = StateClosed
			s.failures = 0
			s.successes = 0
		}
	case StateClosed:
		s.failures = 0
	}
	return prev, s.state, nil
}

func (m *MemoryStore) Failure(_ context.Context, service string, st Settings) (State, State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(service)
	prev := s.state
	switch s.state {
	case StateHalfOpen:
		// A single probe failure reopens regardless of prior successes.
		s.state = StateOpen
		s.openedAt = m.now()
		s.successes = 0
	case StateClosed:
		s.failures++
		if s.failures >= st.FailureThreshold {
			s.state = StateOpen
			s.openedAt = m.now()
		}
	}
	return prev, s.state, nil
}

func (m *MemoryStore) Snapshot(_ context.Context, service string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(service)
	return Snapshot{
		State:     s.state,
		Failures:  s.failures,
		Successes: s.successes,
		OpenedAt:  s.openedAt,
	}, nil
}

func (m *MemoryStore) Reset(_ context.Context, service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, service)
	return nil
}

// SetNow overrides the clock for tests.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
