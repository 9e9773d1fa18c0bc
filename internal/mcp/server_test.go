package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhq/quarry/internal/config"
	qerrors "github.com/quarryhq/quarry/internal/errors"
	"github.com/quarryhq/quarry/internal/pattern"
	"github.com/quarryhq/quarry/internal/retrieval"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/telemetry"
)

// newTestServer wires a server over a real temp-dir store with only the
// relational adapter, so tests run without any external service.
func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	s, err := store.Open(store.Config{
		DataDir:          t.TempDir(),
		KeywordBackend:   "sqlite",
		VectorDimensions: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := config.NewConfig()
	cfg.Search.AdapterTimeout = 2 * time.Second
	cfg.Search.FastTimeout = 5 * time.Second

	adapters := []retrieval.SourceAdapter{
		retrieval.NewRelationalAdapter(s, cfg.Search, nil),
	}
	orchestrator := retrieval.NewOrchestrator(adapters, cfg.Search, nil,
		retrieval.WithRecorder(telemetry.NewCollector()))
	reinforcer := pattern.NewReinforcer(s, nil, nil)

	srv, err := NewServer(orchestrator, reinforcer, s, nil, telemetry.NewCollector(), cfg)
	require.NoError(t, err)
	return srv, s
}

func TestNewServerRequiresCore(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSearchToolValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.searchHandler(ctx, nil, SearchInput{Query: "  "})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	_, _, err = srv.searchHandler(ctx, nil, SearchInput{Query: "ok", Tier: "turbo"})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchToolReturnsMatches(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*store.Memory{
		{ID: "m1", Title: "acme patterns", Content: "acme client patterns for onboarding", Category: "client"},
	}))

	_, out, err := srv.searchHandler(ctx, nil, SearchInput{Query: "client patterns"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Matches)
	assert.Equal(t, "m1", out.Matches[0].ID)
	assert.Equal(t, "keyword", out.Matches[0].Source)
	assert.Equal(t, string(retrieval.TierFast), out.Tier)
	assert.Empty(t, out.Error)
	assert.Equal(t, []string{"relational"}, out.SourcesSucceeded)
}

func TestDeepSearchToolForcesDeepTier(t *testing.T) {
	srv, _ := newTestServer(t)

	_, out, err := srv.deepSearchHandler(context.Background(), nil, SearchInput{Query: "client patterns"})
	require.NoError(t, err)
	assert.Equal(t, string(retrieval.TierDeep), out.Tier)
}

func TestReinforceTool(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	p, err := s.CreatePattern(ctx, "prefers-short-emails", nil)
	require.NoError(t, err)

	_, out, err := srv.reinforceHandler(ctx, nil, ReinforceInput{
		PatternID: p.ID,
		Evidence:  []string{"thread 2026-05-02"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.UseCount)
	assert.Equal(t, "LOW", out.Confidence)
	assert.Equal(t, []string{"thread 2026-05-02"}, out.Evidence)
}

func TestReinforceToolNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.reinforceHandler(context.Background(), nil, ReinforceInput{PatternID: "missing"})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodePatternNotFound, mcpErr.Code)
}

func TestStatusTool(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*store.Memory{
		{ID: "m1", Title: "t", Content: "c", Category: "general"},
	}))

	_, out, err := srv.statusHandler(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.MemoryCount)
	assert.Equal(t, "none", out.Embedder.Model)
	assert.True(t, out.Embedder.FallbackActive)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"pattern not found", qerrors.NotFound("p1"), ErrCodePatternNotFound},
		{"all sources failed", qerrors.New(qerrors.ErrCodeAllSourcesFailed, "all failed", nil), ErrCodeAllSourcesFailed},
		{"validation", qerrors.New(qerrors.ErrCodeEmptyQuery, "empty", nil), ErrCodeInvalidParams},
		{"timeout", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"unknown", assert.AnError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			require.NotNil(t, mapped)
			assert.Equal(t, tt.code, mapped.Code)
		})
	}
	assert.Nil(t, MapError(nil))
}
