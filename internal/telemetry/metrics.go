package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	RunsTotal               *prometheus.CounterVec
	RunDurationMs           *prometheus.HistogramVec
	StageDurationMs         *prometheus.HistogramVec
	ProviderRequestsTotal   *prometheus.CounterVec
	TokensTotal             *prometheus.CounterVec
	CostUSDTotal            *prometheus.CounterVec
	QualityScore            *prometheus.HistogramVec
	BreakerTransitionsTotal *prometheus.CounterVec
	BudgetAlertsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consilium_runs_total",
			Help: "Total pipeline runs by final status and consensus decision.",
		}, []string{"status", "decision"}),

		RunDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consilium_run_duration_ms",
			Help:    "End-to-end pipeline run duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"status"}),

		StageDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consilium_stage_duration_ms",
			Help:    "Per-stage duration in milliseconds.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"stage"}),

		ProviderRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consilium_provider_requests_total",
			Help: "Provider call attempts by outcome.",
		}, []string{"provider", "outcome"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consilium_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"provider", "direction"}),

		CostUSDTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consilium_cost_usd_total",
			Help: "Total recorded spend in USD.",
		}, []string{"provider"}),

		QualityScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consilium_quality_score",
			Help:    "Quality assessment scores for fresh responses.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"provider"}),

		BreakerTransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consilium_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"service", "to"}),

		BudgetAlertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consilium_budget_alerts_total",
			Help: "Budget utilization threshold alerts fired.",
		}, []string{"provider", "threshold"}),
	}
}

// RecordRun records a completed (or failed) pipeline run.
func (m *Metrics) RecordRun(status, decision string, durationMs float64) {
	if decision == "" {
		decision = "none"
	}
	m.RunsTotal.WithLabelValues(status, decision).Inc()
	m.RunDurationMs.WithLabelValues(status).Observe(durationMs)
}

// RecordStage records one stage's duration.
func (m *Metrics) RecordStage(stage string, durationMs float64) {
	m.StageDurationMs.WithLabelValues(stage).Observe(durationMs)
}

// RecordProviderCall records one provider attempt and its usage on success.
func (m *Metrics) RecordProviderCall(provider, outcome string, promptTokens, completionTokens int, costUSD float64) {
	m.ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()

	if promptTokens > 0 {
		m.TokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.TokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		m.CostUSDTotal.WithLabelValues(provider).Add(costUSD)
	}
}

// RecordQuality records a quality score for a fresh (non-cached) response.
func (m *Metrics) RecordQuality(provider string, score float64) {
	m.QualityScore.WithLabelValues(provider).Observe(score)
}

// RecordBreakerTransition records a circuit state change.
func (m *Metrics) RecordBreakerTransition(service, to string) {
	m.BreakerTransitionsTotal.WithLabelValues(service, to).Inc()
}

// RecordBudgetAlert records a budget threshold crossing.
func (m *Metrics) RecordBudgetAlert(provider string, threshold float64) {
	m.BudgetAlertsTotal.WithLabelValues(provider, fmt.Sprintf("%.2f", threshold)).Inc()
}
