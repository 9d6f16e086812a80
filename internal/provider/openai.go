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

// OpenAIAdapter talks to the OpenAI chat completions API and any
// OpenAI-compatible endpoint.
type OpenAIAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewOpenAIAdapter(name string, cfg config.ProviderConfig, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{name: name, cfg: cfg, client: client}
}

func (a *OpenAIAdapter) Name() string  { return a.name }
func (a *OpenAIAdapter) Model() string { return a.cfg.Model }

func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error) {
	body := openAIRequestBody{
		Model:       a.cfg.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("marshal request: %w", err))
	}

	url := a.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
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

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("unmarshal response: %w", err))
	}
	if len(oaiResp.Choices) == 0 {
		return nil, newError(a.name, KindMalformed, fmt.Errorf("response contained no choices"))
	}

	return &Completion{
		Text:             oaiResp.Choices[0].Message.Content,
		Model:            oaiResp.Model,
		PromptTokens:     oaiResp.Usage.PromptTokens,
		CompletionTokens: oaiResp.Usage.CompletionTokens,
		CostUSD:          tokenCost(oaiResp.Usage.PromptTokens, oaiResp.Usage.CompletionTokens, a.cfg.CostPerInputToken, a.cfg.CostPerOutputToken),
	}, nil
}

func (a *OpenAIAdapter) EstimateCost(prompt string, maxTokens int) float64 {
	return tokenCost(estimateTokens(prompt), maxTokens, a.cfg.CostPerInputToken, a.cfg.CostPerOutputToken)
}

func (a *OpenAIAdapter) ValidateConnection(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
