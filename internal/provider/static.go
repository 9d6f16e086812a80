package provider

import (
	"context"
	"fmt"
	"strings"
)

// StaticAdapter is the deterministic, zero-cost fallback provider. It is one
// more registry entry, not a special-cased code path: when every external
// provider is unavailable or over budget, the pipeline still produces a
// conservative templated recommendation.
type StaticAdapter struct {
	name string
}

func NewStaticAdapter(name string) *StaticAdapter {
	return &StaticAdapter{name: name}
}

func (a *StaticAdapter) Name() string  { return a.name }
func (a *StaticAdapter) Model() string { return "static-template-v1" }

func (a *StaticAdapter) Generate(_ context.Context, prompt string, _ int, _ float64) (*Completion, error) {
	subject := strings.TrimSpace(prompt)
	if len(subject) > 120 {
		subject = subject[:120]
	}

	text := fmt.Sprintf(
		"Reasoning: no generation provider was available, so this is a conservative baseline recommendation for: %s. "+
			"Configuration: apply the standard default profile and make no irreversible changes. "+
			"A specialist should review this request before anything is provisioned.",
		subject,
	)

	return &Completion{
		Text:             text,
		Model:            a.Model(),
		PromptTokens:     estimateTokens(prompt),
		CompletionTokens: estimateTokens(text),
		CostUSD:          0,
	}, nil
}

func (a *StaticAdapter) EstimateCost(string, int) float64 { return 0 }

func (a *StaticAdapter) ValidateConnection(context.Context) bool { return true }
