package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/quarryhq/quarry/internal/rerank"
)

// DefaultRerankTopN is how many fused candidates go to the reranker when
// the caller passes 0.
const DefaultRerankTopN = 30

// Reranker reorders the top fused candidates using an external
// cross-encoder. Failures degrade to the fused order rather than failing
// the request.
type Reranker struct {
	client rerank.Client
	logger *slog.Logger
}

// NewReranker wraps a reranking client. A nil client disables reranking.
func NewReranker(client rerank.Client, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{client: client, logger: logger}
}

// Rerank scores the first topN candidates against the query and returns one
// result per candidate, in input order reordered by score.
//
// Candidates with empty content cannot be scored and are excluded from the
// service call, but their positions are preserved: the merged output has
// exactly len(candidates[:topN]) entries and excluded positions carry a nil
// score. Rebuilding the output from the service's response array alone
// would shift every score after an excluded position onto the wrong
// candidate.
func (r *Reranker) Rerank(ctx context.Context, queryText string, candidates []FusedCandidate, topN int) []RerankedResult {
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	if len(candidates) < topN {
		topN = len(candidates)
	}
	slice := candidates[:topN]

	results := make([]RerankedResult, len(slice))
	for i, c := range slice {
		results[i] = RerankedResult{StableID: c.StableID}
	}
	if r.client == nil || len(slice) == 0 {
		return results
	}

	// Positions of scorable candidates, in order.
	var docs []string
	var positions []int
	for i, c := range slice {
		content := strings.TrimSpace(c.BestMatch.Content)
		if content == "" {
			continue
		}
		docs = append(docs, content)
		positions = append(positions, i)
	}
	if len(docs) == 0 {
		return results
	}

	scores, err := r.client.Scores(ctx, queryText, docs)
	if err != nil || len(scores) != len(docs) {
		r.logger.Warn("reranking failed, keeping fused order",
			"error", err,
			"candidates", len(docs))
		return results
	}

	for i, pos := range positions {
		score := scores[i]
		results[pos].Score = &score
	}
	return results
}

// Order sorts reranked results by score descending. Nil-score entries sort
// after scored ones and, like equal scores, keep their relative fused
// order because the sort is stable.
func Order(results []RerankedResult) []RerankedResult {
	out := make([]RerankedResult, len(results))
	copy(out, results)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Score != nil && b.Score != nil:
			return *a.Score > *b.Score
		case a.Score != nil:
			return true
		default:
			return false
		}
	})
	return out
}
