package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/af-corp/consilium/internal/config"
	"github.com/af-corp/consilium/internal/types"
)

// Gateway retrieves grounding snippets for a prompt. Retrieval is advisory:
// an empty result set or an error degrades the run, it never fails it.
type Gateway interface {
	Search(ctx context.Context, query string, topK, minAuthority int) ([]types.GroundingSnippet, error)
}

// HTTPGateway talks to the retrieval service over HTTP JSON.
type HTTPGateway struct {
	address string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPGateway(cfg config.KnowledgeConfig, logger *slog.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		address: cfg.Address,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type searchRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	MinAuthority int    `json:"min_authority"`
}

type searchResponse struct {
	Results []struct {
		Text           string `json:"text"`
		Source         string `json:"source"`
		AuthorityLevel int    `json:"authority_level"`
	} `json:"results"`
}

// Search returns up to topK snippets with authority >= minAuthority, ordered
// by descending authority. Snippets below the floor are dropped even when the
// backend returns them.
func (g *HTTPGateway) Search(ctx context.Context, query string, topK, minAuthority int) ([]types.GroundingSnippet, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK, MinAuthority: minAuthority})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.address+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge search: unexpected status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	snippets := make([]types.GroundingSnippet, 0, len(parsed.Results))
	dropped := 0
	for _, r := range parsed.Results {
		if r.AuthorityLevel < minAuthority {
			dropped++
			continue
		}
		snippets = append(snippets, types.GroundingSnippet{
			Text:           r.Text,
			Source:         r.Source,
			AuthorityLevel: r.AuthorityLevel,
		})
	}
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].AuthorityLevel > snippets[j].AuthorityLevel
	})
	if dropped > 0 {
		g.logger.Debug("dropped low-authority snippets", "dropped", dropped, "min_authority", minAuthority)
	}
	if topK > 0 && len(snippets) > topK {
		snippets = snippets[:topK]
	}
	return snippets, nil
}

// Nop is the gateway used when no retrieval service is configured. Every run
// proceeds ungrounded.
type Nop struct{}

func (Nop) Search(context.Context, string, int, int) ([]types.GroundingSnippet, error) {
	return nil, nil
}
