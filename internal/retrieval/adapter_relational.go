package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/store"
)

// RelationalAdapter backs search with the local hybrid store: FTS keyword
// ranking plus vector similarity, fused server-side.
type RelationalAdapter struct {
	store  *store.Store
	search config.SearchConfig
	logger *slog.Logger
}

var _ SourceAdapter = (*RelationalAdapter)(nil)

// NewRelationalAdapter wraps the hybrid store.
func NewRelationalAdapter(s *store.Store, search config.SearchConfig, logger *slog.Logger) *RelationalAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationalAdapter{store: s, search: search, logger: logger}
}

func (a *RelationalAdapter) ID() config.SourceID {
	return config.SourceRelational
}

func (a *RelationalAdapter) Search(ctx context.Context, query Query, limit int) SourceOutcome {
	rows, err := a.store.HybridRank(ctx, store.HybridQuery{
		Text:         query.Text,
		Embedding:    query.Embedding,
		TextWeight:   a.search.HybridTextWeight,
		VectorWeight: a.search.HybridVectorWeight,
		K:            a.search.RRFConstant,
		Limit:        limit,
	})
	if err != nil {
		return outcomeFor(a.ID(), fmt.Errorf("hybrid rank: %w", err), nil)
	}
	if len(rows) == 0 {
		return outcomeFor(a.ID(), nil, nil)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.MemoryID
	}
	memories, err := a.store.GetMemories(ctx, ids)
	if err != nil {
		return outcomeFor(a.ID(), fmt.Errorf("load memories: %w", err), nil)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		mem, ok := memories[row.MemoryID]
		if !ok {
			// Index and table can briefly disagree after a delete.
			a.logger.Debug("ranked row has no backing memory", "memory_id", row.MemoryID)
			continue
		}
		matches = append(matches, Match{
			StableID: mem.ID,
			Content:  mem.Content,
			Title:    mem.Title,
			Category: mem.Category,
			RawScore: clampScore(row.Similarity),
		})
	}
	return outcomeFor(a.ID(), nil, matches)
}

// clampScore forces a backend score into [0,1].
func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
