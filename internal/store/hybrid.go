package store

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// HybridQuery parameterizes one HybridRank call. Weights and the RRF
// constant are caller-supplied on every call so tuning changes apply
// without reopening the store.
type HybridQuery struct {
	Text         string
	Embedding    []float32 // nil skips the vector leg
	TextWeight   float64
	VectorWeight float64
	K            int // RRF damping constant
	Limit        int
}

// HybridRank runs the keyword and vector rankings concurrently and fuses
// them server-side with Reciprocal Rank Fusion. Rows are labeled hybrid,
// keyword, or semantic depending on which legs contributed.
func (s *Store) HybridRank(ctx context.Context, q HybridQuery) ([]*RankedRow, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.K <= 0 {
		q.K = 60
	}

	// Over-fetch both legs so fusion has enough overlap to work with.
	fetch := q.Limit * 2

	var textHits []*KeywordResult
	var vecHits []*VectorResult

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := s.keyword.Search(gctx, q.Text, fetch)
		if err != nil {
			return fmt.Errorf("keyword leg: %w", err)
		}
		textHits = hits
		return nil
	})

	if len(q.Embedding) > 0 {
		g.Go(func() error {
			hits, err := s.vector.Search(gctx, q.Embedding, fetch)
			if err != nil {
				return fmt.Errorf("vector leg: %w", err)
			}
			vecHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := fuseLegs(textHits, vecHits, q)

	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// VectorRank is the vector-only lookup used for single-mode queries.
func (s *Store) VectorRank(ctx context.Context, embedding []float32, limit int) ([]*RankedRow, error) {
	if limit <= 0 {
		limit = 10
	}

	hits, err := s.vector.Search(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	rows := make([]*RankedRow, 0, len(hits))
	for i, hit := range hits {
		rows = append(rows, &RankedRow{
			MemoryID:   hit.MemoryID,
			Similarity: float64(hit.Score),
			SearchType: SearchTypeSemantic,
			VecRank:    i + 1,
		})
	}
	return rows, nil
}

// fuseLegs applies weighted RRF over the two ranked legs.
// Insertion order (text leg first, then vector leg) fixes tie ordering
// before the stable sort, so equal scores never depend on map iteration.
func fuseLegs(textHits []*KeywordResult, vecHits []*VectorResult, q HybridQuery) []*RankedRow {
	if len(textHits) == 0 && len(vecHits) == 0 {
		return []*RankedRow{}
	}

	byID := make(map[string]*RankedRow, len(textHits)+len(vecHits))
	var ordered []*RankedRow

	add := func(id string) *RankedRow {
		if row, ok := byID[id]; ok {
			return row
		}
		row := &RankedRow{MemoryID: id}
		byID[id] = row
		ordered = append(ordered, row)
		return row
	}

	for i, hit := range textHits {
		row := add(hit.MemoryID)
		row.TextRank = i + 1
		row.Similarity += q.TextWeight / float64(q.K+i+1)
	}
	for i, hit := range vecHits {
		row := add(hit.MemoryID)
		row.VecRank = i + 1
		row.Similarity += q.VectorWeight / float64(q.K+i+1)
	}

	for _, row := range ordered {
		switch {
		case row.TextRank > 0 && row.VecRank > 0:
			row.SearchType = SearchTypeHybrid
		case row.TextRank > 0:
			row.SearchType = SearchTypeKeyword
		default:
			row.SearchType = SearchTypeSemantic
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Similarity > ordered[j].Similarity
	})

	// Normalize so the best row scores 1.0.
	if max := ordered[0].Similarity; max > 0 {
		for _, row := range ordered {
			row.Similarity /= max
		}
	}

	return ordered
}
