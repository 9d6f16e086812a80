package budget

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testManager(limit float64) (*Manager, *MemoryLedger) {
	ledger := NewMemoryLedger()
	m := NewManager(ledger,
		func(string) float64 { return limit },
		func() []float64 { return []float64{0.5, 0.8, 0.95} },
		slog.Default(),
	)
	return m, ledger
}

func TestManager_AdmitsWithinBudget(t *testing.T) {
	m, _ := testManager(10)
	ok, reason := m.CheckAvailability(context.Background(), "openai", 1.5)
	if !ok {
		t.Errorf("expected admission, got rejection: %s", reason)
	}
}

func TestManager_RejectsWhenExhausted(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(10)

	if err := m.RecordSpend(ctx, "openai", 10); err != nil {
		t.Fatal(err)
	}
	ok, reason := m.CheckAvailability(ctx, "openai", 0.01)
	if ok {
		t.Fatal("expected rejection when exhausted")
	}
	if reason == "" {
		t.Error("expected a human-readable reason")
	}
}

func TestManager_RejectsEstimateBeyondRemaining(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(10)

	m.RecordSpend(ctx, "openai", 9)
	ok, _ := m.CheckAvailability(ctx, "openai", 2)
	if ok {
		t.Fatal("expected rejection: estimate 2 > remaining 1")
	}

	// Rejection must not mutate the ledger.
	st, err := m.Status(ctx, "openai")
	if err != nil {
		t.Fatal(err)
	}
	if st.SpendUSD != 9 {
		t.Errorf("expected spend unchanged at 9, got %f", st.SpendUSD)
	}

	ok, _ = m.CheckAvailability(ctx, "openai", 0.5)
	if !ok {
		t.Error("expected admission for estimate within remaining")
	}
}

func TestManager_ZeroLimitIsUnlimited(t *testing.T) {
	m, _ := testManager(0)
	ok, _ := m.CheckAvailability(context.Background(), "static", 100)
	if !ok {
		t.Error("expected admission with no configured limit")
	}
}

func TestManager_AlertsFireOncePerThreshold(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(10)

	var alerts []float64
	m.OnAlert = func(provider string, threshold float64) {
		alerts = append(alerts, threshold)
	}

	m.RecordSpend(ctx, "openai", 6) // crosses 0.5
	m.RecordSpend(ctx, "openai", 1) // still above 0.5, no re-alert
	m.RecordSpend(ctx, "openai", 2) // crosses 0.8
	m.RecordSpend(ctx, "openai", 1) // crosses 0.95 (and 1.0)

	want := []float64{0.5, 0.8, 0.95}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d alerts, got %v", len(want), alerts)
	}
	for i, th := range want {
		if alerts[i] != th {
			t.Errorf("alert %d: expected threshold %f, got %f", i, th, alerts[i])
		}
	}
}

func TestManager_StatusProjection(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(10)

	// Fix the clock at noon UTC: half the day elapsed.
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return noon })

	m.RecordSpend(ctx, "openai", 4)
	st, err := m.Status(ctx, "openai")
	if err != nil {
		t.Fatal(err)
	}

	if st.SpendUSD != 4 {
		t.Errorf("expected spend 4, got %f", st.SpendUSD)
	}
	if st.RemainingUSD != 6 {
		t.Errorf("expected remaining 6, got %f", st.RemainingUSD)
	}
	if st.ProjectedEODUSD < 7.9 || st.ProjectedEODUSD > 8.1 {
		t.Errorf("expected projection near 8 at half day, got %f", st.ProjectedEODUSD)
	}
	if st.Exhausted {
		t.Error("expected not exhausted")
	}
}

func TestLedgerTTL_CoversRestOfDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	ttl := ledgerTTL(now)
	if ttl != 2*time.Hour {
		t.Errorf("expected 2h TTL at 23:00 (1h to rollover + 1h buffer), got %s", ttl)
	}
}
