package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// VectorConfig configures the HNSW vector index.
type VectorConfig struct {
	// Path is the snapshot file. Empty means memory-only (tests).
	Path string

	// Dimensions is the required embedding dimension.
	Dimensions int

	// M is the HNSW connectivity parameter (default 16).
	M int

	// EfSearch is the HNSW search breadth (default 20).
	EfSearch int
}

// HNSWIndex implements VectorIndex with a pure Go HNSW graph.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// String id <-> internal key mapping.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMeta is the gob-persisted sidecar holding id mappings.
type hnswMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
}

// NewHNSWIndex creates a vector index, loading the snapshot if one exists.
func NewHNSWIndex(cfg VectorConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive")
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	idx := &HNSWIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}

	if cfg.Path != "" {
		if err := idx.load(); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// Add inserts vectors with their ids. Existing ids are replaced.
func (h *HNSWIndex) Add(_ context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != h.config.Dimensions {
			return ErrDimensionMismatch{Expected: h.config.Dimensions, Actual: len(v)}
		}
	}

	for i, id := range ids {
		key, exists := h.idMap[id]
		if !exists {
			key = h.nextKey
			h.nextKey++
			h.idMap[id] = key
			h.keyMap[key] = id
		}
		h.graph.Add(hnsw.MakeNode(key, vectors[i]))
	}

	return nil
}

// Search returns up to limit nearest neighbours with cosine similarity scores.
func (h *HNSWIndex) Search(_ context.Context, query []float32, limit int) ([]*VectorResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != h.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: h.config.Dimensions, Actual: len(query)}
	}
	if h.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	nodes := h.graph.Search(query, limit)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := h.graph.Distance(query, node.Value)
		// Cosine distance is 1 - similarity; clamp rounding drift.
		score := 1 - distance
		if score < 0 {
			score = 0
		}
		results = append(results, &VectorResult{MemoryID: id, Score: score})
	}

	return results, nil
}

// Delete removes vectors by id using lazy deletion from the id maps.
// The graph nodes remain but are never resolvable, and are dropped on the
// next full rebuild.
func (h *HNSWIndex) Delete(_ context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		if key, ok := h.idMap[id]; ok {
			delete(h.idMap, id)
			delete(h.keyMap, key)
		}
	}
	return nil
}

// Count returns the number of resolvable vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

// Save persists the graph and id mappings to disk.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.saveLocked()
}

func (h *HNSWIndex) saveLocked() error {
	if h.config.Path == "" {
		return nil
	}

	file, err := os.Create(h.config.Path)
	if err != nil {
		return fmt.Errorf("failed to create vector snapshot: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := h.graph.Export(w); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	meta := hnswMeta{IDMap: h.idMap, NextKey: h.nextKey, Config: h.config}
	metaFile, err := os.Create(h.config.Path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to create snapshot metadata: %w", err)
	}
	defer metaFile.Close()

	return gob.NewEncoder(metaFile).Encode(meta)
}

// load restores the graph and id mappings from disk, if present.
func (h *HNSWIndex) load() error {
	file, err := os.Open(h.config.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open vector snapshot: %w", err)
	}
	defer file.Close()

	if err := h.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	metaFile, err := os.Open(h.config.Path + ".meta")
	if os.IsNotExist(err) {
		return fmt.Errorf("vector snapshot metadata missing at %s.meta", h.config.Path)
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot metadata: %w", err)
	}
	defer metaFile.Close()

	var meta hnswMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("failed to decode snapshot metadata: %w", err)
	}

	h.idMap = meta.IDMap
	h.nextKey = meta.NextKey
	h.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		h.keyMap[key] = id
	}

	return nil
}

// Close persists the index and marks it closed.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.saveLocked()
}
