package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func testMetrics() *Metrics {
	// Hand-built with a private registry to avoid polluting the default one.
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_runs_total", Help: "t",
		}, []string{"status", "decision"}),
		RunDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "test_run_duration_ms", Help: "t", Buckets: []float64{100, 1000},
		}, []string{"status"}),
		StageDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "test_stage_duration_ms", Help: "t", Buckets: []float64{100, 1000},
		}, []string{"stage"}),
		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_provider_requests_total", Help: "t",
		}, []string{"provider", "outcome"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_tokens_total", Help: "t",
		}, []string{"provider", "direction"}),
		CostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_cost_usd_total", Help: "t",
		}, []string{"provider"}),
		QualityScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "test_quality_score", Help: "t", Buckets: []float64{0.5, 1},
		}, []string{"provider"}),
		BreakerTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_breaker_transitions_total", Help: "t",
		}, []string{"service", "to"}),
		BudgetAlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_budget_alerts_total", Help: "t",
		}, []string{"provider", "threshold"}),
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("get metric: %v", err)
	}
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return *metric.Counter.Value
}

func TestRecordRun(t *testing.T) {
	m := testMetrics()
	m.RecordRun("completed", "approve", 1234)
	m.RecordRun("failed", "", 50)

	if got := counterValue(t, m.RunsTotal, "completed", "approve"); got != 1 {
		t.Errorf("expected 1 completed/approve run, got %v", got)
	}
	if got := counterValue(t, m.RunsTotal, "failed", "none"); got != 1 {
		t.Errorf("expected empty decision recorded as none, got %v", got)
	}
}

func TestRecordProviderCall(t *testing.T) {
	m := testMetrics()
	m.RecordProviderCall("openai", "success", 100, 50, 0.005)
	m.RecordProviderCall("openai", "timeout", 0, 0, 0)

	if got := counterValue(t, m.ProviderRequestsTotal, "openai", "success"); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := counterValue(t, m.ProviderRequestsTotal, "openai", "timeout"); got != 1 {
		t.Errorf("expected 1 timeout, got %v", got)
	}
	if got := counterValue(t, m.TokensTotal, "openai", "prompt"); got != 100 {
		t.Errorf("expected 100 prompt tokens, got %v", got)
	}
	if got := counterValue(t, m.CostUSDTotal, "openai"); got != 0.005 {
		t.Errorf("expected cost 0.005, got %v", got)
	}
}

func TestRecordBudgetAlert_ThresholdLabel(t *testing.T) {
	m := testMetrics()
	m.RecordBudgetAlert("anthropic", 0.8)
	if got := counterValue(t, m.BudgetAlertsTotal, "anthropic", "0.80"); got != 1 {
		t.Errorf("expected alert at threshold label 0.80, got %v", got)
	}
}
