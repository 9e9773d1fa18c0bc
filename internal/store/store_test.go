package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarryhq/quarry/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		DataDir:          t.TempDir(),
		KeywordBackend:   "sqlite",
		VectorDimensions: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenLocksDataDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{DataDir: dir, KeywordBackend: "sqlite", VectorDimensions: 4})
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(Config{DataDir: dir, KeywordBackend: "sqlite", VectorDimensions: 4})
	assert.Error(t, err, "second open of the same data dir must fail while locked")
}

func TestSaveGetDeleteMemories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mems := []*Memory{
		{ID: "m1", Title: "retry budget", Content: "exponential backoff with retry budget", Category: "pattern"},
		{ID: "m2", Title: "client prefs", Content: "acme prefers weekly syncs", Category: "client"},
	}
	require.NoError(t, s.SaveMemories(ctx, mems))

	got, err := s.GetMemories(ctx, []string{"m1", "m2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "retry budget", got["m1"].Title)

	// Upsert replaces the content in place.
	mems[0].Content = "jittered exponential backoff"
	require.NoError(t, s.SaveMemories(ctx, mems[:1]))
	got, err = s.GetMemories(ctx, []string{"m1"})
	require.NoError(t, err)
	assert.Equal(t, "jittered exponential backoff", got["m1"].Content)

	count, err := s.MemoryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, s.DeleteMemories(ctx, []string{"m2"}))
	count, err = s.MemoryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHybridRankKeywordOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*Memory{
		{ID: "m1", Title: "backoff", Content: "retry with exponential backoff", Category: "pattern"},
		{ID: "m2", Title: "caching", Content: "cache invalidation strategy", Category: "pattern"},
	}))

	rows, err := s.HybridRank(ctx, HybridQuery{
		Text:       "exponential backoff",
		TextWeight: 1.0,
		K:          60,
		Limit:      10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "m1", rows[0].MemoryID)
	assert.Equal(t, SearchTypeKeyword, rows[0].SearchType)
	assert.InDelta(t, 1.0, rows[0].Similarity, 1e-9, "best hit is normalized to 1.0")
}

func TestHybridRankFusesBothLegs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*Memory{
		{ID: "m1", Title: "backoff", Content: "retry with exponential backoff", Category: "pattern"},
		{ID: "m2", Title: "caching", Content: "cache invalidation strategy", Category: "pattern"},
	}))
	require.NoError(t, s.Vector().Add(ctx,
		[]string{"m1", "m2"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	rows, err := s.HybridRank(ctx, HybridQuery{
		Text:         "exponential backoff",
		Embedding:    []float32{1, 0, 0, 0},
		TextWeight:   0.35,
		VectorWeight: 0.65,
		K:            60,
		Limit:        10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "m1", rows[0].MemoryID)
	assert.Equal(t, SearchTypeHybrid, rows[0].SearchType, "hit in both legs is labeled hybrid")
}

func TestVectorRank(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*Memory{
		{ID: "m1", Title: "a", Content: "a", Category: "general"},
		{ID: "m2", Title: "b", Content: "b", Category: "general"},
	}))
	require.NoError(t, s.Vector().Add(ctx,
		[]string{"m1", "m2"},
		[][]float32{{1, 0, 0, 0}, {0, 0, 1, 0}}))

	rows, err := s.VectorRank(ctx, []float32{0, 0, 1, 0}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "m2", rows[0].MemoryID)
	assert.Equal(t, SearchTypeSemantic, rows[0].SearchType)
}

func TestVectorDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.Vector().Add(context.Background(), []string{"m1"}, [][]float32{{1, 0}})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		count int
		want  Confidence
	}{
		{0, ConfidenceLow},
		{1, ConfidenceLow},
		{2, ConfidenceMedium},
		{4, ConfidenceMedium},
		{5, ConfidenceHigh},
		{50, ConfidenceHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.count), "count=%d", tt.count)
	}
}

func TestPatternLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePattern(ctx, "prefers-async-standup", []string{"meeting 2026-01-10"})
	require.NoError(t, err)
	assert.Equal(t, 0, p.UseCount)
	assert.Equal(t, ConfidenceLow, p.Confidence)

	// LOW -> MEDIUM boundary at the second use.
	p2, err := s.IncrementPattern(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p2.UseCount)
	assert.Equal(t, ConfidenceLow, p2.Confidence)

	p3, err := s.IncrementPattern(ctx, p.ID, []string{"meeting 2026-02-03"})
	require.NoError(t, err)
	assert.Equal(t, 2, p3.UseCount)
	assert.Equal(t, ConfidenceMedium, p3.Confidence)
	assert.Equal(t, []string{"meeting 2026-01-10", "meeting 2026-02-03"}, p3.Evidence)

	for i := 0; i < 3; i++ {
		p3, err = s.IncrementPattern(ctx, p.ID, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, p3.UseCount)
	assert.Equal(t, ConfidenceHigh, p3.Confidence)

	got, err := s.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.UseCount)
}

func TestPatternNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPattern(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodePatternNotFound, qerrors.GetCode(err))

	_, err = s.IncrementPattern(ctx, "nope", nil)
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodePatternNotFound, qerrors.GetCode(err))
}

func TestPatternConcurrentIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePattern(ctx, "hot-pattern", nil)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementPattern(ctx, p.ID, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.UseCount, "every concurrent increment must land")
	assert.Equal(t, ConfidenceHigh, got.Confidence)
}

func TestSearchGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*Memory{
		{ID: "m1", Title: "acme prefs", Content: "acme onboarding notes", Category: "client"},
		{ID: "m2", Title: "billing", Content: "billing system design", Category: "decision"},
	}))

	acme, err := s.UpsertEntity(ctx, "acme", "client")
	require.NoError(t, err)
	billing, err := s.UpsertEntity(ctx, "billing", "concept")
	require.NoError(t, err)

	require.NoError(t, s.LinkMention(ctx, acme, "m1"))
	require.NoError(t, s.LinkMention(ctx, billing, "m2"))
	require.NoError(t, s.LinkRelation(ctx, acme, billing, "uses"))

	hits, err := s.SearchGraph(ctx, []string{"acme"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "m1", hits[0].MemoryID, "direct mention outranks one-hop neighbor")
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "m2", hits[1].MemoryID)

	hits, err = s.SearchGraph(ctx, []string{"unknown-entity"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsertEntityIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertEntity(ctx, "Acme", "client")
	require.NoError(t, err)
	id2, err := s.UpsertEntity(ctx, "acme", "client")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "entity names are case-insensitive")
}

func TestCategoryRegistry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewCategoryRegistry(s)

	c, ok, err := reg.Lookup(ctx, "pattern")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, c.Description)

	_, ok, err = reg.Lookup(ctx, "no-such-category")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := reg.All(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 4, "seeded categories are present")

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO categories (name, description) VALUES ('custom', 'added later')`)
	require.NoError(t, err)

	// Cache still serves the old snapshot until invalidated.
	_, ok, err = reg.Lookup(ctx, "custom")
	require.NoError(t, err)
	assert.False(t, ok)

	reg.Invalidate()
	_, ok, err = reg.Lookup(ctx, "custom")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCategoryResolve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewCategoryRegistry(s)

	assert.Equal(t, "pattern", reg.Resolve(ctx, "  Pattern "))
	assert.Equal(t, "decision", reg.Resolve(ctx, "DECISION"))
	assert.Equal(t, "general", reg.Resolve(ctx, ""))
	assert.Equal(t, "unheard-of", reg.Resolve(ctx, "Unheard-Of"), "unknown labels pass through folded")
}

func TestSaveRegistersCategories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveMemories(ctx, []*Memory{
		{ID: "cm1", Title: "t", Content: "c", Category: "Escalation"},
	})
	require.NoError(t, err)

	reg := NewCategoryRegistry(s)
	c, ok, err := reg.Lookup(ctx, "escalation")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "escalation", c.Name)
}

func TestTokenizeText(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"retry-budget v2", []string{"retry", "budget", "v2"}},
		{"", nil},
		{"   ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TokenizeText(tt.in), "input=%q", tt.in)
	}
}

func TestKeywordBackends(t *testing.T) {
	for _, backend := range []string{"sqlite", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(Config{
				DataDir:          t.TempDir(),
				KeywordBackend:   backend,
				VectorDimensions: 4,
			})
			require.NoError(t, err)
			defer s.Close()

			ctx := context.Background()
			require.NoError(t, s.SaveMemories(ctx, []*Memory{
				{ID: "m1", Title: "backoff", Content: "retry with exponential backoff", Category: "pattern"},
			}))

			hits, err := s.Keyword().Search(ctx, "backoff", 5)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, "m1", hits[0].MemoryID)
		})
	}
}

func TestVectorPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewHNSWIndex(VectorConfig{Path: dir + "/vectors.hnsw", Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []string{"m1"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Close())

	reopened, err := NewHNSWIndex(VectorConfig{Path: dir + "/vectors.hnsw", Dimensions: 4})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Count())
	hits, err := reopened.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].MemoryID)
}

func TestFTSIgnoresSyntaxErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemories(ctx, []*Memory{
		{ID: "m1", Title: "a", Content: "plain content", Category: "general"},
	}))

	for _, q := range []string{`"unbalanced`, "AND OR", ""} {
		_, err := s.Keyword().Search(ctx, q, 5)
		require.NoError(t, err, "query=%q", q)
	}
}
