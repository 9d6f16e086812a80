package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/consilium/internal/breaker"
	"github.com/af-corp/consilium/internal/budget"
	"github.com/af-corp/consilium/internal/idempotency"
	"github.com/af-corp/consilium/internal/provider"
	"github.com/af-corp/consilium/internal/quality"
	"github.com/af-corp/consilium/internal/telemetry"
	"github.com/af-corp/consilium/internal/types"
)

// ErrAllProvidersExhausted is returned when every candidate provider was
// unavailable, over budget, or failed.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ServiceClass prefixes select the breaker settings for a call; maker calls
// run as "generation" services, checker calls as "validation" services.
const (
	ClassGeneration = "generation"
	ClassValidation = "validation"
)

// Service composes the circuit breaker, budget manager, idempotency cache,
// quality assessor, and the ordered provider fallback into one generate
// operation.
type Service struct {
	registry      *provider.Registry
	breaker       *breaker.Breaker
	budget        *budget.Manager
	cache         *idempotency.Cache
	assessor      *quality.Assessor
	fallbackOrder func() []string
	logger        *slog.Logger
	metrics       *telemetry.Metrics
	now           func() time.Time
}

func NewService(
	registry *provider.Registry,
	brk *breaker.Breaker,
	budgetMgr *budget.Manager,
	cache *idempotency.Cache,
	assessor *quality.Assessor,
	fallbackOrder func() []string,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) *Service {
	return &Service{
		registry:      registry,
		breaker:       brk,
		budget:        budgetMgr,
		cache:         cache,
		assessor:      assessor,
		fallbackOrder: fallbackOrder,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Generate produces a response for the request, trying providers in fallback
// order. The idempotency check runs before any provider is invoked; a cached
// hit records no additional spend or latency.
func (s *Service) Generate(ctx context.Context, serviceClass string, req *types.GenerationRequest) (*types.GenerationResponse, error) {
	key := idempotency.Fingerprint(req.CallerID, req.Prompt, req.ModelHint, s.now())
	req.RequestID = key

	if cached := s.cache.Get(ctx, key); cached != nil {
		s.logger.Info("idempotent hit",
			"request_id", key,
			"caller_id", req.CallerID,
			"provider", cached.Provider,
		)
		if s.metrics != nil {
			s.metrics.RecordProviderCall(cached.Provider, "cached", 0, 0, 0)
		}
		return cached, nil
	}

	order := s.candidateOrder(req.PreferProvider)
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no providers registered", ErrAllProvidersExhausted)
	}

	var attempted []string
	for _, name := range order {
		adapter, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		attempted = append(attempted, name)

		resp, err := s.tryProvider(ctx, serviceClass, adapter, req, key)
		if err != nil {
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: attempted %v", ErrAllProvidersExhausted, attempted)
}

// tryProvider runs the budget check and the breaker-guarded call for one
// candidate. Any error means "move to the next provider".
func (s *Service) tryProvider(ctx context.Context, serviceClass string, adapter provider.Adapter, req *types.GenerationRequest, key string) (*types.GenerationResponse, error) {
	name := adapter.Name()

	estimated := adapter.EstimateCost(req.Prompt, req.MaxTokens)
	if ok, reason := s.budget.CheckAvailability(ctx, name, estimated); !ok {
		// Budget rejection is not a provider failure: the breaker is untouched.
		s.logger.Info("provider skipped: budget",
			"provider", name,
			"estimated_usd", estimated,
			"reason", reason,
		)
		if s.metrics != nil {
			s.metrics.RecordProviderCall(name, "budget", 0, 0, 0)
		}
		return nil, fmt.Errorf("budget: %s", reason)
	}

	service := serviceClass + ":" + name
	var completion *provider.Completion
	start := s.now()

	err := s.breaker.Execute(ctx, service, func(callCtx context.Context) error {
		c, genErr := adapter.Generate(callCtx, req.Prompt, req.MaxTokens, req.Temperature)
		if genErr != nil {
			return genErr
		}
		completion = c
		return nil
	}, nil)

	if err != nil {
		outcome := string(provider.Classify(err))
		if errors.Is(err, breaker.ErrCircuitOpen) {
			outcome = "circuit_open"
			s.logger.Info("provider skipped: circuit open", "provider", name)
		} else {
			s.logger.Warn("provider call failed",
				"provider", name,
				"kind", outcome,
				"error", err,
			)
		}
		if s.metrics != nil {
			s.metrics.RecordProviderCall(name, outcome, 0, 0, 0)
		}
		return nil, err
	}

	latency := s.now().Sub(start)
	score := s.assessor.Score(completion.Text, req.Prompt)

	resp := &types.GenerationResponse{
		RequestID:        key,
		Text:             completion.Text,
		Provider:         name,
		Model:            completion.Model,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		CostUSD:          completion.CostUSD,
		LatencyMs:        latency.Milliseconds(),
		QualityScore:     &score,
	}

	if err := s.budget.RecordSpend(ctx, name, completion.CostUSD); err != nil {
		s.logger.Warn("spend not recorded", "provider", name, "error", err)
	}
	if err := s.cache.Put(ctx, key, resp); err != nil {
		s.logger.Warn("idempotency entry not stored", "request_id", key, "error", err)
	}

	s.logger.Info("generation completed",
		"request_id", key,
		"provider", name,
		"model", completion.Model,
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens,
		"cost_usd", completion.CostUSD,
		"quality_score", score,
		"latency_ms", resp.LatencyMs,
	)
	if s.metrics != nil {
		s.metrics.RecordProviderCall(name, "success", completion.PromptTokens, completion.CompletionTokens, completion.CostUSD)
		s.metrics.RecordQuality(name, score)
	}
	return resp, nil
}

// candidateOrder puts the preferred provider first (when registered), then
// the static fallback order, deduplicated.
func (s *Service) candidateOrder(preferred string) []string {
	var order []string
	seen := make(map[string]bool)

	if preferred != "" {
		if _, ok := s.registry.Get(preferred); ok {
			order = append(order, preferred)
			seen[preferred] = true
		}
	}
	for _, name := range s.fallbackOrder() {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	return order
}
