package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/consilium/internal/app"
	"github.com/af-corp/consilium/internal/config"
	"github.com/af-corp/consilium/internal/pipeline"
	"github.com/af-corp/consilium/internal/store"
	"github.com/af-corp/consilium/internal/types"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	cfg := loader.Config()

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Error("database not reachable", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, using in-process stores", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// The worker exists to drain the queue; no NATS, no worker.
	queue, err := pipeline.ConnectQueue(context.Background(), cfg.Queue, logger)
	if err != nil {
		logger.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	records := store.NewPostgresStore(dbPool)
	deps := app.Build(loader, rdb, logger)
	orchestrator := deps.NewOrchestrator(records, queue)

	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	runCtx, cancelRuns := context.WithCancel(context.Background())
	stop, err := queue.ConsumeRuns(runCtx, func(ctx context.Context, req *types.RunRequest) error {
		record := orchestrator.Run(ctx, req)
		logger.Info("queued run finished",
			"trace_id", record.TraceID,
			"status", string(record.Status),
		)
		// The run always resolves to a persisted record; failed runs carry
		// their reason in the record, so the message is consumed either way.
		return nil
	})
	if err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started", "stream", cfg.Queue.Stream, "subject", cfg.Queue.RunSubject, "version", version)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", "signal", sig)

	stop()
	cancelRuns()
	logger.Info("worker stopped")
}
