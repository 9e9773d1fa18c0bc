package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quarryhq/quarry/internal/config"
)

// SemanticAdapter queries the managed semantic-memory service over HTTP.
type SemanticAdapter struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ SourceAdapter = (*SemanticAdapter)(nil)

// SemanticAdapterConfig configures the managed-service adapter.
type SemanticAdapterConfig struct {
	Endpoint string
	APIKey   string

	// Timeout bounds each search call. The orchestrator layers its own
	// per-adapter timeout on top; this one guards direct use.
	Timeout time.Duration
}

// NewSemanticAdapter builds the adapter. The HTTP client reuses pooled
// connections across concurrent calls; per-call state lives on the stack.
func NewSemanticAdapter(cfg SemanticAdapterConfig) *SemanticAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SemanticAdapter{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (a *SemanticAdapter) ID() config.SourceID {
	return config.SourceSemantic
}

type semanticSearchRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding,omitempty"`
	Limit     int       `json:"limit"`
}

type semanticSearchResponse struct {
	Results []struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Content  string  `json:"content"`
		Category string  `json:"category"`
		Score    float64 `json:"score"`
	} `json:"results"`
}

func (a *SemanticAdapter) Search(ctx context.Context, query Query, limit int) SourceOutcome {
	matches, err := a.search(ctx, query, limit)
	return outcomeFor(a.ID(), err, matches)
}

func (a *SemanticAdapter) search(ctx context.Context, query Query, limit int) ([]Match, error) {
	body, err := json.Marshal(semanticSearchRequest{
		Query:     query.Text,
		Embedding: query.Embedding,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/v1/memories/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("semantic search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("semantic search returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed semanticSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	matches := make([]Match, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.ID == "" {
			continue
		}
		matches = append(matches, Match{
			StableID: r.ID,
			Content:  r.Content,
			Title:    r.Title,
			Category: r.Category,
			RawScore: clampScore(r.Score),
		})
	}
	return matches, nil
}

// Close releases pooled connections.
func (a *SemanticAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
