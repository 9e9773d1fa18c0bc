// Package store is the relational hybrid store: memory rows and patterns in
// SQLite, a keyword full-text index (FTS5 or Bleve), and an HNSW vector
// index. Its HybridRank function combines the keyword and vector rankings
// server-side so callers get one fused row set per query.
package store

import (
	"context"
	"fmt"
	"time"
)

// SearchType labels how a ranked row matched.
const (
	SearchTypeHybrid   = "hybrid"
	SearchTypeKeyword  = "keyword"
	SearchTypeSemantic = "semantic"
)

// Memory is one stored memory row.
type Memory struct {
	ID        string
	Title     string
	Content   string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RankedRow is one row returned by HybridRank or VectorRank.
type RankedRow struct {
	MemoryID   string
	Similarity float64 // fused score, normalized to [0, 1]
	SearchType string  // hybrid, keyword, or semantic
	TextRank   int     // 1-indexed position in the keyword ranking, 0 if absent
	VecRank    int     // 1-indexed position in the vector ranking, 0 if absent
}

// KeywordResult is one hit from the keyword index.
type KeywordResult struct {
	MemoryID string
	Score    float64
}

// VectorResult is one hit from the vector index.
type VectorResult struct {
	MemoryID string
	Score    float32 // cosine similarity in [0, 1]
}

// KeywordIndex is the full-text leg of the hybrid store.
type KeywordIndex interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs []*Memory) error

	// Search returns hits ranked best first.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes documents by id.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of indexed documents.
	Count() (int, error)

	// Close releases resources.
	Close() error
}

// VectorIndex is the similarity leg of the hybrid store.
type VectorIndex interface {
	// Add inserts or replaces vectors with their ids.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns the nearest neighbours, best first.
	Search(ctx context.Context, query []float32, limit int) ([]*VectorResult, error)

	// Delete removes vectors by id.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// Save persists the index to disk.
	Save() error

	// Close persists and releases resources.
	Close() error
}

// ErrDimensionMismatch is returned when a vector's dimension does not match
// the index configuration.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
