package consensus

import (
	"fmt"
	"log/slog"

	"github.com/af-corp/consilium/internal/config"
	"github.com/af-corp/consilium/internal/types"
)

// Checker adjustment bounds. A checker can sink a borderline output but can
// only nudge one upward.
const (
	minAdjustment = -0.5
	maxAdjustment = 0.2
)

// Engine merges maker output, optional checker output, and grounding into a
// single decision. It is pure computation; every constant comes from config.
type Engine struct {
	cfg    func() config.PipelineConfig
	logger *slog.Logger
}

func New(cfg func() config.PipelineConfig, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Decide aggregates confidence and maps it to a decision.
//
// A nil checker when the checker is enabled means validation failed to run;
// that forces escalate regardless of confidence, since a validation failure
// must never silently default to approval. A checker that ran and reported
// "not valid" is a large penalty plus its reasons, not disqualification.
func (e *Engine) Decide(maker *types.MakerOutput, checker *types.CheckerOutput, grounding []types.GroundingSnippet, expectGrounding bool) types.ConsensusResult {
	cfg := e.cfg()

	result := types.ConsensusResult{
		AggregateConfidence: clamp01(maker.Confidence),
	}
	for _, s := range grounding {
		result.GroundingSources = append(result.GroundingSources, s.Source)
	}

	checkerMissing := false
	switch {
	case !cfg.CheckerEnabled:
		result.Reasoning = append(result.Reasoning, "validation disabled: maker confidence stands alone")
	case checker == nil:
		checkerMissing = true
		result.Degraded = true
		result.Reasoning = append(result.Reasoning, "validation unavailable: escalating for human review")
	default:
		adj := clampAdjustment(checker.ConfidenceAdjustment)
		result.AggregateConfidence = clamp01(result.AggregateConfidence + adj)
		if adj != 0 {
			result.Reasoning = append(result.Reasoning, fmt.Sprintf("checker adjustment %+.2f", adj))
		}
		if !checker.Valid {
			result.AggregateConfidence = clamp01(result.AggregateConfidence - cfg.InvalidCheckerPenalty)
			result.Reasoning = append(result.Reasoning, "checker rejected the output")
			result.Reasoning = append(result.Reasoning, checker.Reasons...)
		}
	}

	if expectGrounding && len(grounding) == 0 {
		result.AggregateConfidence = clamp01(result.AggregateConfidence - cfg.GroundingPenalty)
		result.Degraded = true
		result.Reasoning = append(result.Reasoning, "no grounding sources: response is unverified")
	}

	switch {
	case checkerMissing:
		result.Decision = types.DecisionEscalate
	case result.AggregateConfidence >= cfg.ApproveThreshold:
		result.Decision = types.DecisionApprove
	case result.AggregateConfidence >= cfg.EscalateThreshold:
		result.Decision = types.DecisionModify
	default:
		result.Decision = types.DecisionEscalate
	}

	e.logger.Info("consensus reached",
		"decision", string(result.Decision),
		"confidence", result.AggregateConfidence,
		"degraded", result.Degraded,
		"grounding_sources", len(result.GroundingSources),
	)
	return result
}

func clampAdjustment(adj float64) float64 {
	if adj < minAdjustment {
		return minAdjustment
	}
	if adj > maxAdjustment {
		return maxAdjustment
	}
	return adj
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
