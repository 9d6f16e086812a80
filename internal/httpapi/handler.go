package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/af-corp/consilium/internal/budget"
	"github.com/af-corp/consilium/internal/pipeline"
	"github.com/af-corp/consilium/internal/store"
	"github.com/af-corp/consilium/internal/types"
)

// Enqueuer dispatches a run request to the worker queue.
type Enqueuer interface {
	EnqueueRun(ctx context.Context, req *types.RunRequest) error
}

// Handler serves the pipeline HTTP API.
type Handler struct {
	orchestrator *pipeline.Orchestrator
	queue        Enqueuer
	records      store.RecordStore
	budget       *budget.Manager
	logger       *slog.Logger
}

func NewHandler(orchestrator *pipeline.Orchestrator, queue Enqueuer, records store.RecordStore, budgetMgr *budget.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		queue:        queue,
		records:      records,
		budget:       budgetMgr,
		logger:       logger,
	}
}

// Routes mounts the API on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/pipeline/runs", h.RunSync)
	r.Post("/v1/pipeline/runs/async", h.RunAsync)
	r.Get("/v1/pipeline/runs/{traceID}", h.GetRun)
	r.Get("/v1/budget/{provider}", h.BudgetStatus)
}

type runPayload struct {
	CallerID string            `json:"caller_id"`
	TenantID string            `json:"tenant_id"`
	Prompt   string            `json:"prompt"`
	Context  map[string]string `json:"context,omitempty"`
}

func (h *Handler) decodeRun(w http.ResponseWriter, r *http.Request) *types.RunRequest {
	var payload runPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteBadRequestError(w, "", "invalid JSON body: "+err.Error())
		return nil
	}
	if payload.Prompt == "" || payload.CallerID == "" || payload.TenantID == "" {
		WriteBadRequestError(w, "", "prompt, caller_id, and tenant_id are required")
		return nil
	}
	return &types.RunRequest{
		TraceID:    uuid.NewString(),
		CallerID:   payload.CallerID,
		TenantID:   payload.TenantID,
		Prompt:     payload.Prompt,
		Context:    payload.Context,
		ReceivedAt: time.Now().UTC(),
	}
}

// RunSync executes a pipeline run inline and returns the full record. Failed
// runs are still a well-formed record, not an error envelope: the caller gets
// the status, reason, and trace ID in one shape.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	req := h.decodeRun(w, r)
	if req == nil {
		return
	}

	record := h.orchestrator.Run(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Trace-ID", record.TraceID)
	json.NewEncoder(w).Encode(record)
}

// RunAsync enqueues the run and returns its trace ID immediately.
func (h *Handler) RunAsync(w http.ResponseWriter, r *http.Request) {
	req := h.decodeRun(w, r)
	if req == nil {
		return
	}
	if h.queue == nil {
		WriteServiceUnavailableError(w, req.TraceID, "async execution is not configured")
		return
	}

	if err := h.queue.EnqueueRun(r.Context(), req); err != nil {
		h.logger.Error("enqueue failed", "trace_id", req.TraceID, "error", err)
		WriteServiceUnavailableError(w, req.TraceID, "could not enqueue run")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"trace_id": req.TraceID,
		"status":   "queued",
	})
}

// GetRun returns the persisted record for a trace ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	record, err := h.records.Get(r.Context(), traceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFoundError(w, traceID, "no run with this trace id")
			return
		}
		h.logger.Error("record lookup failed", "trace_id", traceID, "error", err)
		WriteInternalError(w, traceID, "record lookup failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// BudgetStatus returns today's spend ledger for a provider.
func (h *Handler) BudgetStatus(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	status, err := h.budget.Status(r.Context(), provider)
	if err != nil {
		h.logger.Error("budget status failed", "provider", provider, "error", err)
		WriteInternalError(w, "", "budget status unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
