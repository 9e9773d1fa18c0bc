package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.Embed(t.Context(), "client patterns")
	require.NoError(t, err)
	b, err := e.Embed(t.Context(), "client patterns")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(t.Context(), "   ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(t.Context(), "retrieval fusion ranking")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestHTTPEmbedder_EmbedAndDimensionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{3, 4}},
		})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(t.Context(), HTTPConfig{
		Endpoint:   srv.URL,
		Model:      "test-model",
		Dimensions: 2,
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(t.Context(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	// Normalized 3-4-5 triangle.
	assert.InDelta(t, 0.6, vec[0], 1e-5)
	assert.InDelta(t, 0.8, vec[1], 1e-5)
}

func TestHTTPEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(t.Context(), HTTPConfig{
		Endpoint:        srv.URL,
		Model:           "test-model",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(t.Context(), "hello")
	assert.Error(t, err)
}

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0}}})
	}))
	defer srv.Close()

	inner, err := NewHTTPEmbedder(t.Context(), HTTPConfig{
		Endpoint:        srv.URL,
		Model:           "test-model",
		Dimensions:      2,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	c := NewCachedEmbedder(inner, 16)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Embed(ctx, "repeat me")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "repeat me")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}
