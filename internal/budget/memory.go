package budget

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is a single-process Ledger for tests and nil-Redis mode.
type MemoryLedger struct {
	mu     sync.Mutex
	spend  map[string]float64
	alerts map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		spend:  make(map[string]float64),
		alerts: make(map[string]bool),
	}
}

func (l *MemoryLedger) Spend(_ context.Context, provider, day string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spend[spendKey(provider, day)], nil
}

func (l *MemoryLedger) Add(_ context.Context, provider, day string, amountUSD float64, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spend[spendKey(provider, day)] += amountUSD
	return nil
}

func (l *MemoryLedger) MarkAlert(_ context.Context, provider, day string, threshold float64, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := alertKey(provider, day, threshold)
	if l.alerts[key] {
		return false, nil
	}
	l.alerts[key] = true
	return true, nil
}
