// Package app wires the pipeline's components from loaded configuration.
// Both the API server and the queue worker build the same stack.
package app

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

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
	"github.com/af-corp/consilium/internal/telemetry"
)

// Components holds the shared service graph minus the persistence sink and
// result publisher, which differ between the API server and the worker.
type Components struct {
	Loader      *config.Loader
	Registry    *provider.Registry
	Breaker     *breaker.Breaker
	Budget      *budget.Manager
	Cache       *idempotency.Cache
	Generator   *generation.Service
	Knowledge   knowledge.Gateway
	Engine      *consensus.Engine
	Checkpoints pipeline.CheckpointStore
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

// Build assembles the component graph. A nil Redis client degrades breaker
// state, the budget ledger, the idempotency cache, and checkpoints to
// process-local stores.
func Build(loader *config.Loader, rdb *redis.Client, logger *slog.Logger) *Components {
	cfg := loader.Config()
	metrics := telemetry.NewMetrics()

	registry := provider.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		registry.Swap(provider.BuildFromConfig(loader.Providers()))
		logger.Info("provider registry reloaded")
	})

	var breakerStore breaker.StateStore
	var ledger budget.Ledger
	var kv idempotency.KV
	var checkpoints pipeline.CheckpointStore
	if rdb != nil {
		breakerStore = breaker.NewRedisStore(rdb)
		ledger = budget.NewRedisLedger(rdb)
		kv = idempotency.NewRedisKV(rdb)
		checkpoints = pipeline.NewRedisCheckpoints(rdb, cfg.Pipeline.CheckpointTTL)
	} else {
		breakerStore = breaker.NewMemoryStore()
		ledger = budget.NewMemoryLedger()
		kv = idempotency.NewMemoryKV()
	}

	brk := breaker.New(breakerStore, func() config.CircuitConfig {
		return loader.Config().Circuit
	}, logger)
	brk.OnTransition = func(service string, _, to breaker.State) {
		metrics.RecordBreakerTransition(service, string(to))
	}

	budgetMgr := budget.NewManager(
		ledger,
		func(name string) float64 {
			if p, ok := loader.Providers().Providers[name]; ok {
				return p.DailyBudgetUSD
			}
			return 0
		},
		func() []float64 { return loader.Config().Budget.AlertThresholds },
		logger,
	)
	budgetMgr.OnAlert = metrics.RecordBudgetAlert

	cache := idempotency.NewCache(kv, cfg.Pipeline.IdempotencyTTL, logger)

	generator := generation.NewService(
		registry, brk, budgetMgr, cache, quality.NewAssessor(),
		func() []string { return loader.Config().Pipeline.FallbackOrder },
		logger, metrics,
	)

	var gateway knowledge.Gateway = knowledge.Nop{}
	if cfg.Knowledge.Address != "" {
		gateway = knowledge.NewHTTPGateway(cfg.Knowledge, logger)
	}

	engine := consensus.New(func() config.PipelineConfig {
		return loader.Config().Pipeline
	}, logger)

	return &Components{
		Loader:      loader,
		Registry:    registry,
		Breaker:     brk,
		Budget:      budgetMgr,
		Cache:       cache,
		Generator:   generator,
		Knowledge:   gateway,
		Engine:      engine,
		Checkpoints: checkpoints,
		Metrics:     metrics,
		Logger:      logger,
	}
}

// NewOrchestrator completes the graph with a persistence sink and an optional
// result publisher.
func (c *Components) NewOrchestrator(records store.RecordStore, publisher pipeline.ResultPublisher) *pipeline.Orchestrator {
	_, isNop := c.Knowledge.(knowledge.Nop)
	return pipeline.NewOrchestrator(
		c.Generator,
		c.Knowledge,
		c.Engine,
		records,
		c.Checkpoints,
		publisher,
		func() config.PipelineConfig { return c.Loader.Config().Pipeline },
		func() config.KnowledgeConfig { return c.Loader.Config().Knowledge },
		!isNop,
		c.Metrics,
		c.Logger,
	)
}
