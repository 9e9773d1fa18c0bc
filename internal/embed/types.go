// Package embed provides clients for the external embedding service plus a
// deterministic static fallback. Embeddings feed the vector leg of the
// relational hybrid store and the semantic-memory adapter.
package embed

import (
	"context"
	"math"
	"time"
)

// Default embedding configuration values.
const (
	// DefaultDimensions is the embedding dimension for the default model.
	DefaultDimensions = 768

	// StaticDimensions is the dimension of the hash-based fallback embedder.
	StaticDimensions = 256

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheSize is the default LRU cache capacity for query embeddings.
	DefaultCacheSize = 4096
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors pass through.
func normalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
