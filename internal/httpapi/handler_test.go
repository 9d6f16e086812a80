package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/consilium/internal/breaker"
	"github.com/af-corp/consilium/internal/budget"
	"github.com/af-corp/consilium/internal/config"
	"github.com/af-corp/consilium/internal/consensus"
	"github.com/af-corp/consilium/internal/generation"
	"github.com/af-corp/consilium/internal/idempotency"
	"github.com/af-corp/consilium/internal/knowledge"
	"github.com/af-corp/consilium/internal/pipeline"
	"github.com/af-corp/consilium/internal/provider"
	"github.com/af-corp/consilium/internal/quality"
	"github.com/af-corp/consilium/internal/store"
	"github.com/af-corp/consilium/internal/types"
)

type fakeEnqueuer struct {
	enqueued []*types.RunRequest
	err      error
}

func (f *fakeEnqueuer) EnqueueRun(_ context.Context, req *types.RunRequest) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, req)
	return nil
}

// newTestHandler wires a full pipeline over the static adapter and in-memory
// stores, so requests execute end to end without any external service.
func newTestHandler(t *testing.T, queue Enqueuer) (*Handler, *store.MemoryStore, *budget.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	cfg.Pipeline.FallbackOrder = []string{"static"}
	cfg.Pipeline.CheckerEnabled = false

	registry := provider.NewRegistry()
	registry.Register("static", provider.NewStaticAdapter("static"))

	brk := breaker.New(breaker.NewMemoryStore(), func() config.CircuitConfig { return cfg.Circuit }, logger)
	budgetMgr := budget.NewManager(
		budget.NewMemoryLedger(),
		func(string) float64 { return 10 },
		func() []float64 { return cfg.Budget.AlertThresholds },
		logger,
	)
	cache := idempotency.NewCache(idempotency.NewMemoryKV(), time.Hour, logger)

	generator := generation.NewService(
		registry, brk, budgetMgr, cache, quality.NewAssessor(),
		func() []string { return cfg.Pipeline.FallbackOrder },
		logger, nil,
	)

	records := store.NewMemoryStore()
	orchestrator := pipeline.NewOrchestrator(
		generator, knowledge.Nop{},
		consensus.New(func() config.PipelineConfig { return cfg.Pipeline }, logger),
		records, nil, nil,
		func() config.PipelineConfig { return cfg.Pipeline },
		func() config.KnowledgeConfig { return cfg.Knowledge },
		false,
		nil, logger,
	)

	return NewHandler(orchestrator, queue, records, budgetMgr, logger), records, budgetMgr
}

func newTestRouter(t *testing.T, h *Handler) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

const validBody = `{"caller_id": "agent-7", "tenant_id": "tenant-1", "prompt": "set up a workstation"}`

func TestRunSync(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	r := newTestRouter(t, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/runs", strings.NewReader(validBody)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("expected X-Trace-ID header")
	}

	var record types.PipelineRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Status != types.StatusCompleted {
		t.Errorf("expected completed run, got %s (%s)", record.Status, record.FailureReason)
	}
	if record.Consensus == nil {
		t.Error("expected a consensus result")
	}
}

func TestRunSync_InvalidBody(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	r := newTestRouter(t, h)

	cases := []string{
		`not json`,
		`{"caller_id": "a", "tenant_id": "t"}`,
		`{"prompt": "p"}`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/runs", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestRunAsync(t *testing.T) {
	queue := &fakeEnqueuer{}
	h, _, _ := newTestHandler(t, queue)
	r := newTestRouter(t, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/runs/async", strings.NewReader(validBody)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["trace_id"] == "" || resp["status"] != "queued" {
		t.Errorf("unexpected response: %v", resp)
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued run, got %d", len(queue.enqueued))
	}
	if queue.enqueued[0].TraceID != resp["trace_id"] {
		t.Error("returned trace id must match the enqueued run")
	}
}

func TestRunAsync_QueueUnavailable(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	r := newTestRouter(t, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/runs/async", strings.NewReader(validBody)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a queue, got %d", rec.Code)
	}

	queue := &fakeEnqueuer{err: errors.New("nats down")}
	h, _, _ = newTestHandler(t, queue)
	r = newTestRouter(t, h)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/runs/async", strings.NewReader(validBody)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 on enqueue failure, got %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	h, records, _ := newTestHandler(t, nil)
	r := newTestRouter(t, h)

	seeded := &types.PipelineRecord{
		TraceID:  "trace-123",
		CallerID: "agent-7",
		TenantID: "tenant-1",
		Status:   types.StatusCompleted,
	}
	if err := records.Save(context.Background(), seeded); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/runs/trace-123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got types.PipelineRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.TraceID != "trace-123" {
		t.Errorf("unexpected record: %+v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown trace id, got %d", rec.Code)
	}
}

func TestBudgetStatus(t *testing.T) {
	h, _, budgetMgr := newTestHandler(t, nil)
	r := newTestRouter(t, h)

	if err := budgetMgr.RecordSpend(context.Background(), "static", 2.5); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/budget/static", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status budget.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Provider != "static" || status.SpendUSD != 2.5 || status.DailyLimitUSD != 10 {
		t.Errorf("unexpected status: %+v", status)
	}
}
