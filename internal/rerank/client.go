// Package rerank provides a client for the external cross-encoder reranking
// service. Reranking is a quality enhancement: callers must treat any failure
// here as "keep the existing order", never as a request failure.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Default reranker configuration values.
const (
	DefaultEndpoint = "http://localhost:9659"
	DefaultModel    = "reranker-small"
	DefaultTimeout  = 10 * time.Second
)

// Client scores candidate documents against a query.
type Client interface {
	// Scores returns one relevance score per document, in input order.
	// len(scores) == len(documents) on success.
	Scores(ctx context.Context, query string, documents []string) ([]float64, error)

	// Available checks if the reranking service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Config holds configuration for the HTTP reranker client.
type Config struct {
	// Endpoint is the reranking service base URL.
	Endpoint string

	// Model is the reranker model alias.
	Model string

	// Timeout bounds each rerank request.
	Timeout time.Duration

	// SkipHealthCheck skips the availability probe during creation (tests).
	SkipHealthCheck bool
}

// HTTPClient calls the reranking service over HTTP.
type HTTPClient struct {
	client *http.Client
	config Config

	mu     sync.RWMutex
	closed bool
}

var _ Client = (*HTTPClient)(nil)

// rerankRequest is the JSON body for POST /rerank.
type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse is the JSON body returned by POST /rerank.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPClient creates a reranker client.
func NewHTTPClient(ctx context.Context, cfg Config) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &HTTPClient{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if !c.Available(checkCtx) {
			return nil, fmt.Errorf("reranking service unavailable at %s", cfg.Endpoint)
		}
	}

	return c, nil
}

// Scores requests relevance scores for the documents.
func (c *HTTPClient) Scores(ctx context.Context, query string, documents []string) ([]float64, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	c.mu.RUnlock()

	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.config.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	// A score count mismatch would silently misattribute scores downstream.
	if len(parsed.Scores) != len(documents) {
		return nil, fmt.Errorf("rerank score count mismatch: got %d scores for %d documents",
			len(parsed.Scores), len(documents))
	}

	return parsed.Scores, nil
}

// Available probes the service health endpoint.
func (c *HTTPClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP resources.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// NoopClient returns no scores and is used when reranking is disabled.
type NoopClient struct{}

var _ Client = (*NoopClient)(nil)

// Scores returns uniform descending scores preserving input order.
func (n *NoopClient) Scores(_ context.Context, _ string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i := range documents {
		scores[i] = 1.0 - float64(i)*0.01
	}
	return scores, nil
}

// Available always returns true.
func (n *NoopClient) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (n *NoopClient) Close() error { return nil }
