package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Status reports a provider's ledger for the current UTC day. The projection
// extrapolates the current spend rate to end of day; it is advisory only and
// never gates admission.
type Status struct {
	Provider        string  `json:"provider"`
	Day             string  `json:"day"`
	SpendUSD        float64 `json:"spend_usd"`
	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	RemainingUSD    float64 `json:"remaining_usd"`
	Utilization     float64 `json:"utilization"`
	ProjectedEODUSD float64 `json:"projected_eod_usd"`
	Exhausted       bool    `json:"exhausted"`
}

// Ledger is the shared per-(provider, day) spend store. Additions must be
// atomic so concurrent workers cannot lose updates.
type Ledger interface {
	Spend(ctx context.Context, provider, day string) (float64, error)
	Add(ctx context.Context, provider, day string, amountUSD float64, ttl time.Duration) error
	// MarkAlert reports whether this (provider, day, threshold) crossing is
	// the first one, so repeated crossings do not re-alert.
	MarkAlert(ctx context.Context, provider, day string, threshold float64, ttl time.Duration) (bool, error)
}

// Manager enforces per-provider daily spend caps and fires utilization alerts.
type Manager struct {
	ledger     Ledger
	limitFor   func(provider string) float64
	thresholds func() []float64
	logger     *slog.Logger
	now        func() time.Time

	// OnAlert fires once per (provider, threshold) per day (for metrics).
	OnAlert func(provider string, threshold float64)
}

func NewManager(ledger Ledger, limitFor func(string) float64, thresholds func() []float64, logger *slog.Logger) *Manager {
	return &Manager{
		ledger:     ledger,
		limitFor:   limitFor,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

func day(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// ledgerTTL keeps entries until end of day UTC plus a buffer, so the ledger
// resets implicitly at day rollover.
func ledgerTTL(now time.Time) time.Duration {
	now = now.UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return endOfDay.Sub(now) + time.Hour
}

// CheckAvailability admits a request when today's ledger has room for the
// estimated cost. Rejection mutates nothing. Ledger read errors fail open.
func (m *Manager) CheckAvailability(ctx context.Context, provider string, estimatedUSD float64) (bool, string) {
	limit := m.limitFor(provider)
	if limit <= 0 {
		return true, ""
	}

	spend, err := m.ledger.Spend(ctx, provider, day(m.now()))
	if err != nil {
		m.logger.Warn("budget ledger unavailable, failing open", "provider", provider, "error", err)
		return true, ""
	}

	if spend >= limit {
		return false, fmt.Sprintf("daily budget exhausted: spent %.4f of %.4f USD", spend, limit)
	}
	if estimatedUSD > limit-spend {
		return false, fmt.Sprintf("estimated cost %.4f USD exceeds remaining budget %.4f USD", estimatedUSD, limit-spend)
	}
	return true, ""
}

// RecordSpend adds actual cost to today's ledger and fires any newly crossed
// utilization alerts. Callers must pair this with the idempotency cache so a
// cached hit never double-records spend.
func (m *Manager) RecordSpend(ctx context.Context, provider string, actualUSD float64) error {
	if actualUSD <= 0 {
		return nil
	}
	now := m.now()
	d := day(now)
	if err := m.ledger.Add(ctx, provider, d, actualUSD, ledgerTTL(now)); err != nil {
		return fmt.Errorf("record spend for %s: %w", provider, err)
	}
	m.fireAlerts(ctx, provider, d, now)
	return nil
}

func (m *Manager) fireAlerts(ctx context.Context, provider, d string, now time.Time) {
	limit := m.limitFor(provider)
	if limit <= 0 {
		return
	}
	spend, err := m.ledger.Spend(ctx, provider, d)
	if err != nil {
		return
	}
	utilization := spend / limit

	for _, threshold := range m.thresholds() {
		if utilization < threshold {
			continue
		}
		first, err := m.ledger.MarkAlert(ctx, provider, d, threshold, ledgerTTL(now))
		if err != nil || !first {
			continue
		}
		m.logger.Warn("budget threshold crossed",
			"provider", provider,
			"threshold", threshold,
			"spend_usd", spend,
			"limit_usd", limit,
			"utilization", utilization,
		)
		if m.OnAlert != nil {
			m.OnAlert(provider, threshold)
		}
	}
}

// Status returns today's ledger with an end-of-day projection.
func (m *Manager) Status(ctx context.Context, provider string) (Status, error) {
	now := m.now()
	spend, err := m.ledger.Spend(ctx, provider, day(now))
	if err != nil {
		return Status{}, fmt.Errorf("budget status for %s: %w", provider, err)
	}

	limit := m.limitFor(provider)
	st := Status{
		Provider:      provider,
		Day:           day(now),
		SpendUSD:      spend,
		DailyLimitUSD: limit,
	}
	if limit > 0 {
		st.RemainingUSD = limit - spend
		if st.RemainingUSD < 0 {
			st.RemainingUSD = 0
		}
		st.Utilization = spend / limit
		st.Exhausted = spend >= limit
	}

	elapsed := now.UTC().Sub(time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC))
	fraction := elapsed.Seconds() / (24 * time.Hour).Seconds()
	if fraction > 0 {
		st.ProjectedEODUSD = spend / fraction
	}
	return st, nil
}

// SetNow overrides the clock for tests.
func (m *Manager) SetNow(now func() time.Time) { m.now = now }
