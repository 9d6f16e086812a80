package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Circuit   CircuitConfig   `yaml:"circuit"`
	Budget    BudgetConfig    `yaml:"budget"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type QueueConfig struct {
	URL            string `yaml:"url"`
	Stream         string `yaml:"stream"`
	RunSubject     string `yaml:"run_subject"`
	ResultSubject  string `yaml:"result_subject"`
	FailureSubject string `yaml:"failure_subject"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// PipelineConfig holds the orchestration and consensus tuning surface.
// The consensus adjustment constants are configuration, not fixed semantics.
type PipelineConfig struct {
	FallbackOrder    []string      `yaml:"fallback_order"`
	MakerMaxTokens   int           `yaml:"maker_max_tokens"`
	CheckerMaxTokens int           `yaml:"checker_max_tokens"`
	CheckerEnabled   bool          `yaml:"checker_enabled"`
	CheckerProvider  string        `yaml:"checker_provider"`
	IdempotencyTTL   time.Duration `yaml:"idempotency_ttl"`
	CheckpointTTL    time.Duration `yaml:"checkpoint_ttl"`

	ApproveThreshold  float64 `yaml:"approve_threshold"`
	EscalateThreshold float64 `yaml:"escalate_threshold"`
	// InvalidCheckerPenalty is applied when the checker ran and reported the
	// output as not valid, instead of disqualifying the run outright.
	InvalidCheckerPenalty float64 `yaml:"invalid_checker_penalty"`
	// GroundingPenalty is applied when the context expects extrinsic facts but
	// retrieval returned nothing.
	GroundingPenalty float64 `yaml:"grounding_penalty"`
}

// CircuitConfig carries the default breaker settings plus per-service-prefix
// overrides. Generation services get a longer recovery window than validation
// services because their failures are costlier to retry.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	StateTTL         time.Duration `yaml:"state_ttl"`

	Overrides map[string]CircuitOverride `yaml:"overrides"`
}

type CircuitOverride struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

type BudgetConfig struct {
	// AlertThresholds are utilization fractions at which a once-per-day alert
	// fires per provider.
	AlertThresholds []float64 `yaml:"alert_thresholds"`
}

type KnowledgeConfig struct {
	Address      string        `yaml:"address"`
	Timeout      time.Duration `yaml:"timeout"`
	TopK         int           `yaml:"top_k"`
	MinAuthority int           `yaml:"min_authority"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "consilium",
			User:            "consilium",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Queue: QueueConfig{
			URL:            "nats://localhost:4222",
			Stream:         "CONSILIUM",
			RunSubject:     "pipeline.runs.request",
			ResultSubject:  "pipeline.runs.completed",
			FailureSubject: "pipeline.runs.failed",
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Pipeline: PipelineConfig{
			FallbackOrder:         []string{"openai", "anthropic", "static"},
			MakerMaxTokens:        1024,
			CheckerMaxTokens:      512,
			CheckerEnabled:        true,
			CheckerProvider:       "anthropic",
			IdempotencyTTL:        24 * time.Hour,
			CheckpointTTL:         time.Hour,
			ApproveThreshold:      0.7,
			EscalateThreshold:     0.4,
			InvalidCheckerPenalty: 0.4,
			GroundingPenalty:      0.05,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  15 * time.Second,
			SuccessThreshold: 2,
			CallTimeout:      30 * time.Second,
			StateTTL:         time.Hour,
			Overrides: map[string]CircuitOverride{
				"generation": {
					FailureThreshold: 5,
					RecoveryTimeout:  60 * time.Second,
					SuccessThreshold: 2,
					CallTimeout:      60 * time.Second,
				},
				"validation": {
					FailureThreshold: 3,
					RecoveryTimeout:  15 * time.Second,
					SuccessThreshold: 1,
					CallTimeout:      15 * time.Second,
				},
			},
		},
		Budget: BudgetConfig{
			AlertThresholds: []float64{0.5, 0.8, 0.95},
		},
		Knowledge: KnowledgeConfig{
			Address:      "http://localhost:7700",
			Timeout:      5 * time.Second,
			TopK:         5,
			MinAuthority: 0,
		},
	}
}
