package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/af-corp/consilium/internal/config"
)

// State represents the state of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"    // healthy — calls flow
	StateOpen     State = "open"      // unhealthy — calls short-circuit
	StateHalfOpen State = "half_open" // probing — calls allowed until verdict
)

// ErrCircuitOpen is returned when the circuit is open and no fallback was given.
var ErrCircuitOpen = errors.New("circuit open")

// Settings are the per-service breaker parameters.
type Settings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	CallTimeout      time.Duration
	StateTTL         time.Duration
}

// Snapshot is a read-only view of a service's breaker state.
type Snapshot struct {
	State     State
	Failures  int
	Successes int
	OpenedAt  time.Time
}

// StateStore holds breaker state shared across workers. All transition logic
// runs inside the store so concurrent workers cannot lose updates; keys carry
// a TTL so abandoned state self-heals.
type StateStore interface {
	// Acquire reports whether a call may proceed, applying the
	// OPEN -> HALF_OPEN transition when the recovery timeout has elapsed.
	Acquire(ctx context.Context, service string, st Settings) (State, bool, error)
	// Success records a successful call and returns (previous, next) state.
	Success(ctx context.Context, service string, st Settings) (State, State, error)
	// Failure records a failed call and returns (previous, next) state.
	Failure(ctx context.Context, service string, st Settings) (State, State, error)
	Snapshot(ctx context.Context, service string) (Snapshot, error)
	Reset(ctx context.Context, service string) error
}

// Breaker guards outbound calls with per-service circuit state. Settings are
// resolved by the longest matching service-name prefix in the config.
type Breaker struct {
	store  StateStore
	cfg    func() config.CircuitConfig
	logger *slog.Logger

	// OnTransition fires for every observed state change (for metrics).
	OnTransition func(service string, from, to State)
}

func New(store StateStore, cfg func() config.CircuitConfig, logger *slog.Logger) *Breaker {
	return &Breaker{store: store, cfg: cfg, logger: logger}
}

// SettingsFor resolves breaker settings for a service name, preferring the
// longest configured prefix override.
func (b *Breaker) SettingsFor(service string) Settings {
	c := b.cfg()
	st := Settings{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		SuccessThreshold: c.SuccessThreshold,
		CallTimeout:      c.CallTimeout,
		StateTTL:         c.StateTTL,
	}
	best := ""
	for prefix := range c.Overrides {
		if strings.HasPrefix(service, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		o := c.Overrides[best]
		if o.FailureThreshold > 0 {
			st.FailureThreshold = o.FailureThreshold
		}
		if o.RecoveryTimeout > 0 {
			st.RecoveryTimeout = o.RecoveryTimeout
		}
		if o.SuccessThreshold > 0 {
			st.SuccessThreshold = o.SuccessThreshold
		}
		if o.CallTimeout > 0 {
			st.CallTimeout = o.CallTimeout
		}
	}
	return st
}

// Execute runs op under the service's circuit. When the circuit is open the
// fallback runs instead if provided, otherwise ErrCircuitOpen is returned.
// Store errors fail open: one uncounted call is cheaper than a stuck pipeline.
func (b *Breaker) Execute(ctx context.Context, service string, op func(context.Context) error, fallback func(context.Context) error) error {
	st := b.SettingsFor(service)

	state, allowed, err := b.store.Acquire(ctx, service, st)
	if err != nil {
		b.logger.Warn("breaker state store unavailable, failing open", "service", service, "error", err)
		allowed = true
	}
	if !allowed {
		if fallback != nil {
			return fallback(ctx)
		}
		return fmt.Errorf("%s: %w", service, ErrCircuitOpen)
	}
	if state == StateHalfOpen {
		b.logger.Info("circuit probe", "service", service)
	}

	callCtx := ctx
	if st.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, st.CallTimeout)
		defer cancel()
	}

	if opErr := op(callCtx); opErr != nil {
		prev, next, serr := b.store.Failure(ctx, service, st)
		if serr == nil {
			b.observe(service, prev, next)
		}
		return opErr
	}

	prev, next, serr := b.store.Success(ctx, service, st)
	if serr == nil {
		b.observe(service, prev, next)
	}
	return nil
}

func (b *Breaker) observe(service string, from, to State) {
	if from == to {
		return
	}
	b.logger.Info("circuit transition", "service", service, "from", string(from), "to", string(to))
	if b.OnTransition != nil {
		b.OnTransition(service, from, to)
	}
}

// Snapshot exposes the current state for status endpoints and tests.
func (b *Breaker) Snapshot(ctx context.Context, service string) (Snapshot, error) {
	return b.store.Snapshot(ctx, service)
}
