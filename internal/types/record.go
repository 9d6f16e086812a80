package types

import "time"

// RunStatus is the caller-visible state of a pipeline run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Stage names, in execution order. Used as keys in StageLatencies and as the
// state field of checkpoints.
const (
	StageRetrieving = "retrieving"
	StageGenerating = "generating"
	StageValidating = "validating"
	StageConsensus  = "consensus"
	StagePersisting = "persisting"
	StageNotifying  = "notifying"
)

// PipelineRecord is the durable, append-only record of one pipeline run.
// It is the only entity the surrounding application layer consumes.
type PipelineRecord struct {
	TraceID        string             `json:"trace_id"`
	CallerID       string             `json:"caller_id"`
	TenantID       string             `json:"tenant_id"`
	Prompt         string             `json:"prompt"`
	MakerOutput    *MakerOutput       `json:"maker_output,omitempty"`
	CheckerOutput  *CheckerOutput     `json:"checker_output,omitempty"`
	Consensus      *ConsensusResult   `json:"consensus,omitempty"`
	Grounding      []GroundingSnippet `json:"grounding,omitempty"`
	Status         RunStatus          `json:"status"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	StageLatencies map[string]int64   `json:"stage_latencies_ms,omitempty"`
	TotalLatencyMs int64              `json:"total_latency_ms"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ConfidenceScore returns the aggregate confidence, or 0 for failed runs
// that never reached consensus.
func (r *PipelineRecord) ConfidenceScore() float64 {
	if r.Consensus == nil {
		return 0
	}
	return r.Consensus.AggregateConfidence
}
