package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/embed"
	"github.com/quarryhq/quarry/internal/pattern"
	"github.com/quarryhq/quarry/internal/retrieval"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/telemetry"
	"github.com/quarryhq/quarry/pkg/version"
)

// Server bridges AI clients with the retrieval engine and the pattern
// reinforcer over MCP.
type Server struct {
	mcp          *mcp.Server
	orchestrator *retrieval.Orchestrator
	reinforcer   *pattern.Reinforcer
	store        *store.Store
	embedder     embed.Embedder
	metrics      *telemetry.Collector
	config       *config.Config
	logger       *slog.Logger
}

// SearchInput is the input schema shared by the search tools.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Tier  string `json:"tier,omitempty" jsonschema:"retrieval tier: auto, fast, adaptive, or deep; default auto"`
}

// SearchOutput is the output schema for the search tools.
type SearchOutput struct {
	Matches          []MatchOutput `json:"matches" jsonschema:"ordered result list"`
	SourcesAttempted []string      `json:"sources_attempted" jsonschema:"backends this request queried"`
	SourcesSucceeded []string      `json:"sources_succeeded" jsonschema:"backends that answered, possibly with zero matches"`
	Tier             string        `json:"tier" jsonschema:"retrieval tier that served the request"`
	Error            string        `json:"error,omitempty" jsonschema:"set only when every backend failed"`
}

// MatchOutput is a single search result.
type MatchOutput struct {
	ID       string  `json:"id" jsonschema:"stable identifier of the memory"`
	Title    string  `json:"title,omitempty" jsonschema:"memory title"`
	Content  string  `json:"content" jsonschema:"memory content"`
	Category string  `json:"category,omitempty" jsonschema:"memory category"`
	Score    float64 `json:"score" jsonschema:"backend relevance between 0 and 1"`
	Source   string  `json:"source" jsonschema:"provenance: semantic, keyword, graph, or hybrid"`
}

// ReinforceInput is the input schema for the reinforce_pattern tool.
type ReinforceInput struct {
	PatternID string   `json:"pattern_id" jsonschema:"id of the pattern to reinforce"`
	Evidence  []string `json:"evidence,omitempty" jsonschema:"new evidence strings to append"`
}

// ReinforceOutput is the output schema for the reinforce_pattern tool.
type ReinforceOutput struct {
	PatternID  string   `json:"pattern_id"`
	Name       string   `json:"name"`
	UseCount   int      `json:"use_count" jsonschema:"total reinforcements"`
	Confidence string   `json:"confidence" jsonschema:"LOW, MEDIUM, or HIGH"`
	Evidence   []string `json:"evidence"`
}

// StatusInput is the (empty) input schema for the status tool.
type StatusInput struct{}

// StatusOutput reports engine health and counters.
type StatusOutput struct {
	Version        string                              `json:"version"`
	MemoryCount    int                                 `json:"memory_count"`
	Embedder       EmbedderStatus                      `json:"embedder"`
	Tiers          map[string]telemetry.TierStats      `json:"tiers,omitempty"`
	SourceFailures map[string]telemetry.SourceFailures `json:"source_failures,omitempty"`
}

// EmbedderStatus describes the active embedding provider.
type EmbedderStatus struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"`

	// FallbackActive is true when the deterministic static embedder is
	// serving instead of the configured service.
	FallbackActive bool `json:"fallback_active"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(orchestrator *retrieval.Orchestrator, reinforcer *pattern.Reinforcer, s *store.Store, embedder embed.Embedder, metrics *telemetry.Collector, cfg *config.Config) (*Server, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if reinforcer == nil {
		return nil, errors.New("reinforcer is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	srv := &Server{
		orchestrator: orchestrator,
		reinforcer:   reinforcer,
		store:        s,
		embedder:     embedder,
		metrics:      metrics,
		config:       cfg,
		logger:       slog.Default(),
	}

	srv.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Quarry",
			Version: version.Version,
		},
		nil,
	)
	srv.registerTools()

	return srv, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search stored memories across keyword, semantic, and graph backends with rank fusion. Routes to the fast or adaptive tier automatically based on query complexity; pass tier to override.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search_deep",
		Description: "Exhaustive memory search. Always fans out to every backend and runs a second synthesis pass. Slower than memory_search; use for broad or multi-part questions.",
	}, s.deepSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reinforce_pattern",
		Description: "Record another observation of a stored pattern. Atomically increments its use count, recomputes the confidence tier, and appends evidence.",
	}, s.reinforceHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_status",
		Description: "Report engine health: memory count, active embedder, and per-tier request metrics.",
	}, s.statusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return s.runSearch(ctx, input, false)
}

func (s *Server) deepSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	input.Tier = string(retrieval.TierDeep)
	return s.runSearch(ctx, input, true)
}

func (s *Server) runSearch(ctx context.Context, input SearchInput, forceDeep bool) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	requestID := generateRequestID()
	start := time.Now()
	s.logger.Info("mcp search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("tier", input.Tier))

	var result retrieval.SearchResult
	switch {
	case forceDeep || input.Tier == string(retrieval.TierDeep):
		result = s.orchestrator.DeepSearch(ctx, input.Query, input.Limit)
	case input.Tier == string(retrieval.TierFast):
		result = s.orchestrator.FastSearch(ctx, input.Query, input.Limit)
	case input.Tier == string(retrieval.TierAdaptive):
		result = s.orchestrator.AdaptiveSearch(ctx, input.Query, input.Limit)
	case input.Tier == "" || input.Tier == "auto":
		result = s.orchestrator.Search(ctx, input.Query, input.Limit)
	default:
		return nil, SearchOutput{}, NewInvalidParamsError(
			fmt.Sprintf("unknown tier %q (expected auto, fast, adaptive, or deep)", input.Tier))
	}

	s.logger.Info("mcp search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(result.Matches)))

	return nil, toSearchOutput(result), nil
}

func (s *Server) reinforceHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReinforceInput) (*mcp.CallToolResult, ReinforceOutput, error) {
	if strings.TrimSpace(input.PatternID) == "" {
		return nil, ReinforceOutput{}, NewInvalidParamsError("pattern_id parameter is required")
	}

	p, err := s.reinforcer.Reinforce(ctx, input.PatternID, input.Evidence)
	if err != nil {
		return nil, ReinforceOutput{}, MapError(err)
	}

	return nil, ReinforceOutput{
		PatternID:  p.ID,
		Name:       p.Name,
		UseCount:   p.UseCount,
		Confidence: string(p.Confidence),
		Evidence:   p.Evidence,
	}, nil
}

func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusOutput, error) {
	out := &StatusOutput{Version: version.Version}

	if s.store != nil {
		count, err := s.store.MemoryCount(ctx)
		if err == nil {
			out.MemoryCount = count
		}
	}

	if s.embedder != nil {
		out.Embedder = EmbedderStatus{
			Model:          s.embedder.ModelName(),
			Dimensions:     s.embedder.Dimensions(),
			FallbackActive: s.embedder.Dimensions() == embed.StaticDimensions,
		}
		if s.embedder.Available(ctx) {
			out.Embedder.Status = "ready"
		} else {
			out.Embedder.Status = "unavailable"
		}
	} else {
		out.Embedder = EmbedderStatus{Model: "none", Status: "unavailable", FallbackActive: true}
	}

	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		out.Tiers = make(map[string]telemetry.TierStats, len(snap))
		for tier, stats := range snap {
			out.Tiers[string(tier)] = stats
		}
		failures := s.metrics.SourceFailureSnapshot()
		if len(failures) > 0 {
			out.SourceFailures = make(map[string]telemetry.SourceFailures, len(failures))
			for source, counts := range failures {
				out.SourceFailures[string(source)] = counts
			}
		}
	}

	return nil, out, nil
}

func toSearchOutput(result retrieval.SearchResult) SearchOutput {
	out := SearchOutput{
		Matches:          make([]MatchOutput, 0, len(result.Matches)),
		SourcesAttempted: sourceStrings(result.SourcesAttempted),
		SourcesSucceeded: sourceStrings(result.SourcesSucceeded),
		Tier:             string(result.Tier),
		Error:            result.Error,
	}
	for _, m := range result.Matches {
		source := ""
		if len(m.SourceTags) > 0 {
			source = m.SourceTags[0]
		}
		out.Matches = append(out.Matches, MatchOutput{
			ID:       m.StableID,
			Title:    m.Title,
			Content:  m.Content,
			Category: m.Category,
			Score:    m.RawScore,
			Source:   source,
		})
	}
	return out
}

func sourceStrings(ids []config.SourceID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Serve runs the server over the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
