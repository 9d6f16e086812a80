package types

// GenerationResponse is produced by exactly one provider adapter (or the
// idempotency cache) per request ID.
type GenerationResponse struct {
	RequestID        string   `json:"request_id"`
	Text             string   `json:"text"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	CostUSD          float64  `json:"cost_usd"`
	LatencyMs        int64    `json:"latency_ms"`
	QualityScore     *float64 `json:"quality_score,omitempty"` // nil until assessed
	Cached           bool     `json:"cached"`
}

// MakerOutput is the first-stage candidate recommendation plus the maker's
// self-reported confidence.
type MakerOutput struct {
	Response   *GenerationResponse `json:"response"`
	Text       string              `json:"text"`
	Confidence float64             `json:"confidence"`
}

// CheckerOutput is the optional second-stage critique of the maker's output.
// A nil *CheckerOutput downstream means the checker failed to run, which is
// not the same as a checker that ran and found problems.
type CheckerOutput struct {
	Response             *GenerationResponse `json:"response"`
	Valid                bool                `json:"valid"`
	ConfidenceAdjustment float64             `json:"confidence_adjustment"`
	Reasons              []string            `json:"reasons,omitempty"`
}

// GroundingSnippet is one ranked knowledge-base reference.
type GroundingSnippet struct {
	Text           string `json:"text"`
	Source         string `json:"source"`
	AuthorityLevel int    `json:"authority_level"`
}

// Decision is the consensus outcome gating downstream side effects.
type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionModify   Decision = "modify"
	DecisionEscalate Decision = "escalate"
)

// ConsensusResult merges maker, checker, and grounding into a single decision.
// Derived once per pipeline run and never mutated afterwards.
type ConsensusResult struct {
	Decision            Decision `json:"decision"`
	AggregateConfidence float64  `json:"aggregate_confidence"`
	Reasoning           []string `json:"reasoning,omitempty"`
	GroundingSources    []string `json:"grounding_sources,omitempty"`
	Degraded            bool     `json:"degraded"`
}
