package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/consilium/internal/config"
	"github.com/af-corp/consilium/internal/consensus"
	"github.com/af-corp/consilium/internal/generation"
	"github.com/af-corp/consilium/internal/knowledge"
	"github.com/af-corp/consilium/internal/store"
	"github.com/af-corp/consilium/internal/telemetry"
	"github.com/af-corp/consilium/internal/types"
)

// ResultPublisher is the notify-stage sink. *Queue implements it; a nil
// publisher skips the stage.
type ResultPublisher interface {
	PublishResult(ctx context.Context, record *types.PipelineRecord) error
}

// Orchestrator runs the six-stage pipeline: retrieve, generate, validate,
// consensus, persist, notify. Stage failures are contained; only a maker
// generation failure or a persistence failure fails the run. The caller
// always gets a record, never a raw error from a stage.
type Orchestrator struct {
	generator   *generation.Service
	knowledge   knowledge.Gateway
	engine      *consensus.Engine
	records     store.RecordStore
	checkpoints CheckpointStore
	publisher   ResultPublisher

	cfg          func() config.PipelineConfig
	knowledgeCfg func() config.KnowledgeConfig
	// expectGrounding marks whether an empty retrieval result should count
	// against confidence; false when only the nop gateway is wired.
	expectGrounding bool

	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewOrchestrator(
	generator *generation.Service,
	gateway knowledge.Gateway,
	engine *consensus.Engine,
	records store.RecordStore,
	checkpoints CheckpointStore,
	publisher ResultPublisher,
	cfg func() config.PipelineConfig,
	knowledgeCfg func() config.KnowledgeConfig,
	expectGrounding bool,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		generator:       generator,
		knowledge:       gateway,
		engine:          engine,
		records:         records,
		checkpoints:     checkpoints,
		publisher:       publisher,
		cfg:             cfg,
		knowledgeCfg:    knowledgeCfg,
		expectGrounding: expectGrounding,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
	}
}

// Run executes one pipeline run to completion. Cancellation is honored
// between stages; an in-flight provider call finishes under its own timeout.
func (o *Orchestrator) Run(ctx context.Context, req *types.RunRequest) *types.PipelineRecord {
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	start := o.now()
	cfg := o.cfg()

	record := &types.PipelineRecord{
		TraceID:        req.TraceID,
		CallerID:       req.CallerID,
		TenantID:       req.TenantID,
		Prompt:         req.Prompt,
		StageLatencies: make(map[string]int64),
		CreatedAt:      start.UTC(),
	}
	logger := o.logger.With("trace_id", req.TraceID, "caller_id", req.CallerID)
	logger.Info("pipeline run started")

	if req.Prompt == "" || req.CallerID == "" || req.TenantID == "" {
		return o.fail(ctx, record, start, "invalid request: prompt, caller_id, and tenant_id are required")
	}

	// RETRIEVING. Failure degrades to no grounding, never fatal.
	o.runStage(ctx, record, types.StageRetrieving, func(stageCtx context.Context) {
		kcfg := o.knowledgeCfg()
		grounding, err := o.knowledge.Search(stageCtx, req.Prompt, kcfg.TopK, kcfg.MinAuthority)
		if err != nil {
			logger.Warn("retrieval failed, continuing ungrounded", "error", err)
			return
		}
		record.Grounding = grounding
	})
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, record, start, "cancelled before generation: "+err.Error())
	}

	// GENERATING. The only stage besides persistence whose failure is fatal.
	var makerErr error
	o.runStage(ctx, record, types.StageGenerating, func(stageCtx context.Context) {
		makerReq := &types.GenerationRequest{
			CallerID:    req.CallerID,
			TenantID:    req.TenantID,
			Prompt:      makerPrompt(req, record.Grounding),
			MaxTokens:   cfg.MakerMaxTokens,
			Temperature: 0.7,
		}
		resp, err := o.generator.Generate(stageCtx, generation.ClassGeneration, makerReq)
		if err != nil {
			makerErr = err
			return
		}
		record.MakerOutput = parseMakerOutput(resp)
	})
	if makerErr != nil {
		return o.fail(ctx, record, start, "generation failed: "+makerErr.Error())
	}
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, record, start, "cancelled before validation: "+err.Error())
	}

	// VALIDATING. Optional; failure leaves a nil checker output, which the
	// consensus engine escalates.
	if cfg.CheckerEnabled {
		o.runStage(ctx, record, types.StageValidating, func(stageCtx context.Context) {
			checkerReq := &types.GenerationRequest{
				CallerID:       req.CallerID,
				TenantID:       req.TenantID,
				Prompt:         checkerPrompt(req.Prompt, record.MakerOutput.Text),
				MaxTokens:      cfg.CheckerMaxTokens,
				PreferProvider: cfg.CheckerProvider,
			}
			resp, err := o.generator.Generate(stageCtx, generation.ClassValidation, checkerReq)
			if err != nil {
				logger.Warn("checker failed, run will escalate", "error", err)
				return
			}
			record.CheckerOutput = parseCheckerOutput(resp)
		})
	}
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, record, start, "cancelled before consensus: "+err.Error())
	}

	// CONSENSUS. Pure computation.
	o.runStage(ctx, record, types.StageConsensus, func(context.Context) {
		result := o.engine.Decide(record.MakerOutput, record.CheckerOutput, record.Grounding, o.expectGrounding)
		record.Consensus = &result
	})

	// PERSISTING. Fatal on failure: an unrecorded run did not happen.
	var saveErr error
	record.Status = types.StatusCompleted
	record.TotalLatencyMs = o.now().Sub(start).Milliseconds()
	o.runStage(ctx, record, types.StagePersisting, func(stageCtx context.Context) {
		saveErr = o.records.Save(stageCtx, record)
	})
	if saveErr != nil {
		logger.Error("pipeline record not persisted", "error", saveErr)
		return o.fail(ctx, record, start, "persistence failed: "+saveErr.Error())
	}

	// NOTIFYING. Best effort.
	o.runStage(ctx, record, types.StageNotifying, func(stageCtx context.Context) {
		if o.publisher == nil {
			return
		}
		if err := o.publisher.PublishResult(stageCtx, record); err != nil {
			logger.Warn("result not published", "error", err)
		}
	})

	// The durable record supersedes the crash-diagnosis checkpoint.
	if o.checkpoints != nil {
		if err := o.checkpoints.Clear(ctx, record.TraceID); err != nil {
			logger.Warn("checkpoint not cleared", "error", err)
		}
	}

	record.TotalLatencyMs = o.now().Sub(start).Milliseconds()
	logger.Info("pipeline run completed",
		"decision", string(record.Consensus.Decision),
		"confidence", record.Consensus.AggregateConfidence,
		"degraded", record.Consensus.Degraded,
		"total_latency_ms", record.TotalLatencyMs,
	)
	if o.metrics != nil {
		o.metrics.RecordRun(string(record.Status), string(record.Consensus.Decision), float64(record.TotalLatencyMs))
	}
	return record
}

// runStage times a stage, records its latency, and checkpoints the
// accumulated state. Checkpoint errors are logged and swallowed.
func (o *Orchestrator) runStage(ctx context.Context, record *types.PipelineRecord, stage string, fn func(context.Context)) {
	stageStart := o.now()
	fn(ctx)
	elapsed := o.now().Sub(stageStart).Milliseconds()
	record.StageLatencies[stage] = elapsed

	if o.metrics != nil {
		o.metrics.RecordStage(stage, float64(elapsed))
	}
	if o.checkpoints != nil {
		if err := o.checkpoints.Save(ctx, stage, record); err != nil {
			o.logger.Warn("checkpoint not saved", "trace_id", record.TraceID, "stage", stage, "error", err)
		}
	}
}

// fail finalizes a run as FAILED with a human-readable reason. The failed
// record is persisted best-effort and announced on the failure subject.
func (o *Orchestrator) fail(ctx context.Context, record *types.PipelineRecord, start time.Time, reason string) *types.PipelineRecord {
	record.Status = types.StatusFailed
	record.FailureReason = reason
	record.TotalLatencyMs = o.now().Sub(start).Milliseconds()

	o.logger.Error("pipeline run failed",
		"trace_id", record.TraceID,
		"reason", reason,
		"total_latency_ms", record.TotalLatencyMs,
	)

	if err := o.records.Save(ctx, record); err != nil {
		o.logger.Error("failed record not persisted", "trace_id", record.TraceID, "error", err)
	}
	if o.publisher != nil {
		if err := o.publisher.PublishResult(ctx, record); err != nil {
			o.logger.Warn("failure not published", "trace_id", record.TraceID, "error", err)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordRun(string(types.StatusFailed), "", float64(record.TotalLatencyMs))
	}
	return record
}

// makerEnvelope is the structured response format the maker prompt asks for.
type makerEnvelope struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// parseMakerOutput extracts the answer and self-reported confidence from the
// maker response. Unstructured responses fall back to the raw text with the
// quality score standing in for confidence.
func parseMakerOutput(resp *types.GenerationResponse) *types.MakerOutput {
	out := &types.MakerOutput{Response: resp, Text: resp.Text}

	var env makerEnvelope
	if err := json.Unmarshal([]byte(resp.Text), &env); err == nil && env.Answer != "" {
		out.Text = env.Answer
		out.Confidence = clamp01(env.Confidence)
		return out
	}
	if resp.QualityScore != nil {
		out.Confidence = *resp.QualityScore
	}
	return out
}

// checkerEnvelope is the structured verdict format the checker prompt asks for.
type checkerEnvelope struct {
	Valid                bool     `json:"valid"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment"`
	Reasons              []string `json:"reasons"`
}

// parseCheckerOutput extracts the checker verdict. An unstructured checker
// response counts as a neutral pass, not a missing checker: the checker ran,
// it just did not follow the format.
func parseCheckerOutput(resp *types.GenerationResponse) *types.CheckerOutput {
	out := &types.CheckerOutput{Response: resp, Valid: true}

	var env checkerEnvelope
	if err := json.Unmarshal([]byte(resp.Text), &env); err == nil {
		out.Valid = env.Valid
		out.ConfidenceAdjustment = env.ConfidenceAdjustment
		out.Reasons = env.Reasons
		return out
	}
	out.Reasons = []string{"checker returned unstructured output"}
	return out
}

func makerPrompt(req *types.RunRequest, grounding []types.GroundingSnippet) string {
	var b strings.Builder
	b.WriteString("You are an infrastructure recommendation assistant. ")
	b.WriteString("Respond with a JSON object {\"answer\": \"...\", \"confidence\": 0.0-1.0}. ")
	b.WriteString("The answer must include your reasoning and the recommended configuration.\n\n")

	if len(req.Context) > 0 {
		b.WriteString("Request context:\n")
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Context[k])
		}
		b.WriteString("\n")
	}

	if len(grounding) > 0 {
		b.WriteString("Reference material (cite by source when relevant):\n")
		for _, s := range grounding {
			fmt.Fprintf(&b, "[%s] %s\n", s.Source, s.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("Request: ")
	b.WriteString(req.Prompt)
	return b.String()
}

func checkerPrompt(originalPrompt, makerText string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a proposed recommendation. ")
	b.WriteString("Respond with a JSON object {\"valid\": true|false, \"confidence_adjustment\": -0.5 to 0.2, \"reasons\": [\"...\"]}.\n\n")
	b.WriteString("Original request: ")
	b.WriteString(originalPrompt)
	b.WriteString("\n\nProposed recommendation:\n")
	b.WriteString(makerText)
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
