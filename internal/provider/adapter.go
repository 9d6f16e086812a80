package provider

import "context"

// Completion is the normalized result of one provider call. CostUSD is exact,
// computed from actual token counts and the provider's configured prices.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Adapter is the uniform call contract every provider implements. Adapters
// normalize each provider's error taxonomy into *Error so callers can decide
// to skip or fail without knowing the provider.
type Adapter interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error)
	// EstimateCost prices a call before it is made, for budget admission.
	EstimateCost(prompt string, maxTokens int) float64
	ValidateConnection(ctx context.Context) bool
}

// estimateTokens is the pre-call token heuristic: roughly four characters
// per token for English prose.
func estimateTokens(text string) int {
	return len(text)/4 + 1
}

func tokenCost(promptTokens, completionTokens int, inPrice, outPrice float64) float64 {
	return float64(promptTokens)*inPrice + float64(completionTokens)*outPrice
}
