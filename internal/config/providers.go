package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// Prices are USD per single token. Exact cost is computed post-call from
	// actual token counts; the same prices feed the pre-call estimate.
	CostPerInputToken  float64 `yaml:"cost_per_input_token"`
	CostPerOutputToken float64 `yaml:"cost_per_output_token"`

	DailyBudgetUSD float64           `yaml:"daily_budget_usd"`
	MaxConcurrent  int               `yaml:"max_concurrent"`
	Timeout        time.Duration     `yaml:"timeout"`
	Headers        map[string]string `yaml:"headers,omitempty"`
}
