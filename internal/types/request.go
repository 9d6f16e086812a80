package types

import "time"

// GenerationRequest is the canonical internal representation of a single
// generation call. It is immutable once constructed: the request ID is derived
// from the request content (see idempotency.Fingerprint), never caller-supplied.
type GenerationRequest struct {
	RequestID   string            `json:"request_id"`
	CallerID    string            `json:"caller_id"`
	TenantID    string            `json:"tenant_id"`
	Prompt      string            `json:"prompt"`
	ModelHint   string            `json:"model_hint,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// PreferProvider is consulted first when building the fallback order.
	PreferProvider string `json:"prefer_provider,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// RunRequest is the inbound payload for a full pipeline run.
type RunRequest struct {
	TraceID  string            `json:"trace_id"`
	CallerID string            `json:"caller_id"`
	TenantID string            `json:"tenant_id"`
	Prompt   string            `json:"prompt"`
	Context  map[string]string `json:"context,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}
