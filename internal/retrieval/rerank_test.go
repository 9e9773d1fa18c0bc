package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRerankClient records the documents it was asked to score.
type fakeRerankClient struct {
	gotDocs []string
	scores  []float64
	err     error
}

func (f *fakeRerankClient) Scores(_ context.Context, _ string, docs []string) ([]float64, error) {
	f.gotDocs = docs
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeRerankClient) Available(context.Context) bool { return true }
func (f *fakeRerankClient) Close() error                   { return nil }

func candidate(id, content string) FusedCandidate {
	return FusedCandidate{StableID: id, BestMatch: Match{StableID: id, Content: content}}
}

func TestRerankIndexAlignment(t *testing.T) {
	// c1 has no content: it must be excluded from the service call yet
	// keep its slot in the merged output with a nil score.
	client := &fakeRerankClient{scores: []float64{0.9, 0.4}}
	r := NewReranker(client, nil)

	results := r.Rerank(context.Background(), "q", []FusedCandidate{
		candidate("c0", "first doc"),
		candidate("c1", ""),
		candidate("c2", "third doc"),
	}, 30)

	assert.Equal(t, []string{"first doc", "third doc"}, client.gotDocs,
		"empty-content candidate must not reach the service")

	require.Len(t, results, 3)
	assert.Equal(t, "c0", results[0].StableID)
	require.NotNil(t, results[0].Score)
	assert.Equal(t, 0.9, *results[0].Score)

	assert.Equal(t, "c1", results[1].StableID)
	assert.Nil(t, results[1].Score, "excluded position keeps nil score, not c2's score")

	assert.Equal(t, "c2", results[2].StableID)
	require.NotNil(t, results[2].Score)
	assert.Equal(t, 0.4, *results[2].Score, "c2's score must not shift onto c1")
}

func TestRerankServiceFailureKeepsOrder(t *testing.T) {
	client := &fakeRerankClient{err: errors.New("service down")}
	r := NewReranker(client, nil)

	results := r.Rerank(context.Background(), "q", []FusedCandidate{
		candidate("a", "doc a"),
		candidate("b", "doc b"),
	}, 30)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].StableID)
	assert.Equal(t, "b", results[1].StableID)
	for _, res := range results {
		assert.Nil(t, res.Score)
	}
}

func TestRerankScoreCountMismatchKeepsOrder(t *testing.T) {
	client := &fakeRerankClient{scores: []float64{0.5}}
	r := NewReranker(client, nil)

	results := r.Rerank(context.Background(), "q", []FusedCandidate{
		candidate("a", "doc a"),
		candidate("b", "doc b"),
	}, 30)

	require.Len(t, results, 2)
	assert.Nil(t, results[0].Score)
	assert.Nil(t, results[1].Score)
}

func TestRerankHonorsTopN(t *testing.T) {
	client := &fakeRerankClient{scores: []float64{0.9, 0.8}}
	r := NewReranker(client, nil)

	results := r.Rerank(context.Background(), "q", []FusedCandidate{
		candidate("a", "doc a"),
		candidate("b", "doc b"),
		candidate("c", "doc c"),
	}, 2)

	assert.Len(t, results, 2)
	assert.Len(t, client.gotDocs, 2)
}

func TestRerankNilClient(t *testing.T) {
	r := NewReranker(nil, nil)
	results := r.Rerank(context.Background(), "q", []FusedCandidate{candidate("a", "doc")}, 30)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Score)
}

func TestOrder(t *testing.T) {
	s1, s2 := 0.3, 0.9
	ordered := Order([]RerankedResult{
		{StableID: "low", Score: &s1},
		{StableID: "unscored-1"},
		{StableID: "high", Score: &s2},
		{StableID: "unscored-2"},
	})

	got := make([]string, len(ordered))
	for i, r := range ordered {
		got[i] = r.StableID
	}
	assert.Equal(t, []string{"high", "low", "unscored-1", "unscored-2"}, got,
		"scored first by score, unscored after in original order")
}
