package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/af-corp/consilium/internal/config"
)

// AnthropicAdapter talks to the Anthropic Messages API.
type AnthropicAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewAnthropicAdapter(name string, cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{name: name, cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() string  { return a.name }
func (a *AnthropicAdapter) Model() string { return a.cfg.Model }

func (a *AnthropicAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error) {
	// Anthropic requires max_tokens.
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropicRequestBody{
		Model:       a.cfg.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("marshal request: %w", err))
	}

	url := a.cfg.BaseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(a.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(a.name, resp.StatusCode, string(respBody))
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("unmarshal response: %w", err))
	}

	var content string
	for _, block := range antResp.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}
	if content == "" {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("response contained no text block"))
	}

	return &Completion{
		Text:             content,
		Model:            antResp.Model,
		PromptTokens:     antResp.Usage.InputTokens,
		CompletionTokens: antResp.Usage.OutputTokens,
		CostUSD:          tokenCost(antResp.Usage.InputTokens, antResp.Usage.OutputTokens, a.cfg.CostPerInputToken, a.cfg.CostPerOutputToken),
	}, nil
}

func (a *AnthropicAdapter) EstimateCost(prompt string, maxTokens int) float64 {
	return tokenCost(estimateTokens(prompt), maxTokens, a.cfg.CostPerInputToken, a.cfg.CostPerOutputToken)
}

func (a *AnthropicAdapter) ValidateConnection(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
