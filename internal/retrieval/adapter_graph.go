package retrieval

import (
	"context"
	"fmt"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/store"
)

// GraphAdapter answers queries by walking the entity graph: query terms
// resolve to entities, expand one hop, and surface the memories those
// entities mention. Useful for relationship questions where neither
// keywords nor embeddings rank well.
type GraphAdapter struct {
	store *store.Store
}

var _ SourceAdapter = (*GraphAdapter)(nil)

// NewGraphAdapter wraps the store's entity graph.
func NewGraphAdapter(s *store.Store) *GraphAdapter {
	return &GraphAdapter{store: s}
}

func (a *GraphAdapter) ID() config.SourceID {
	return config.SourceGraph
}

func (a *GraphAdapter) Search(ctx context.Context, query Query, limit int) SourceOutcome {
	terms := store.TokenizeText(query.Text)
	hits, err := a.store.SearchGraph(ctx, terms, limit)
	if err != nil {
		return outcomeFor(a.ID(), fmt.Errorf("graph search: %w", err), nil)
	}
	if len(hits) == 0 {
		return outcomeFor(a.ID(), nil, nil)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.MemoryID
	}
	memories, err := a.store.GetMemories(ctx, ids)
	if err != nil {
		return outcomeFor(a.ID(), fmt.Errorf("load memories: %w", err), nil)
	}

	// Graph scores are hop-weighted match counts; normalize against the
	// best hit so RawScore lands in [0,1].
	best := hits[0].Score
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		mem, ok := memories[h.MemoryID]
		if !ok {
			continue
		}
		score := 1.0
		if best > 0 {
			score = h.Score / best
		}
		matches = append(matches, Match{
			StableID: mem.ID,
			Content:  mem.Content,
			Title:    mem.Title,
			Category: mem.Category,
			RawScore: clampScore(score),
		})
	}
	return outcomeFor(a.ID(), nil, matches)
}
