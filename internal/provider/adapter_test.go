package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/af-corp/consilium/internal/config"
)

func openAITestConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Type:               "openai",
		BaseURL:            baseURL,
		APIKey:             "test-key",
		Model:              "gpt-4o",
		CostPerInputToken:  0.000001,
		CostPerOutputToken: 0.000002,
		Timeout:            5 * time.Second,
	}
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "the answer"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20}
		}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("openai", openAITestConfig(srv.URL), srv.Client())
	c, err := a.Generate(context.Background(), "question", 100, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text != "the answer" {
		t.Errorf("unexpected text: %s", c.Text)
	}
	wantCost := 10*0.000001 + 20*0.000002
	if c.CostUSD != wantCost {
		t.Errorf("expected cost %f, got %f", wantCost, c.CostUSD)
	}
}

func TestOpenAIAdapter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("openai", openAITestConfig(srv.URL), srv.Client())
	_, err := a.Generate(context.Background(), "question", 100, 0)

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if pe.Kind != KindRateLimit || !pe.Transient() {
		t.Errorf("expected transient rate_limit, got %s", pe.Kind)
	}
}

func TestOpenAIAdapter_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("openai", openAITestConfig(srv.URL), srv.Client())
	_, err := a.Generate(context.Background(), "question", 100, 0)

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if pe.Kind != KindMalformed || pe.Transient() {
		t.Errorf("expected fatal malformed, got %s", pe.Kind)
	}
}

func TestAnthropicAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %s", got)
		}
		w.Write([]byte(`{
			"model": "claude-sonnet",
			"content": [{"type": "text", "text": "validated"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	cfg := openAITestConfig(srv.URL)
	cfg.Type = "anthropic"
	cfg.Model = "claude-sonnet"
	a := NewAnthropicAdapter("anthropic", cfg, srv.Client())

	c, err := a.Generate(context.Background(), "check this", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text != "validated" {
		t.Errorf("unexpected text: %s", c.Text)
	}
	if c.PromptTokens != 5 || c.CompletionTokens != 7 {
		t.Errorf("unexpected usage: %d/%d", c.PromptTokens, c.CompletionTokens)
	}
}

func TestStaticAdapter_DeterministicAndFree(t *testing.T) {
	a := NewStaticAdapter("static")

	c1, err := a.Generate(context.Background(), "configure office setup", 100, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	c2, _ := a.Generate(context.Background(), "configure office setup", 100, 0.7)

	if c1.Text != c2.Text {
		t.Error("static adapter must be deterministic")
	}
	if c1.CostUSD != 0 || a.EstimateCost("anything", 1000) != 0 {
		t.Error("static adapter must be zero-cost")
	}
	if !strings.Contains(c1.Text, "Reasoning:") || !strings.Contains(c1.Text, "Configuration:") {
		t.Error("static output must carry the structural markers")
	}
	if !a.ValidateConnection(context.Background()) {
		t.Error("static adapter is always connected")
	}
}

func TestEstimateCost_Heuristic(t *testing.T) {
	a := NewOpenAIAdapter("openai", openAITestConfig("http://unused"), http.DefaultClient)
	prompt := strings.Repeat("a", 400) // ~100 tokens
	got := a.EstimateCost(prompt, 200)
	want := 101*0.000001 + 200*0.000002
	if got != want {
		t.Errorf("expected estimate %f, got %f", want, got)
	}
}
