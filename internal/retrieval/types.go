// Package retrieval implements the tiered hybrid retrieval engine: query
// classification, concurrent fan-out to heterogeneous backends, reciprocal
// rank fusion, cross-encoder reranking, and deduplicated formatting.
//
// The engine's cardinal rule is that backend failures become data, not
// panics or errors: every adapter call produces a SourceOutcome, and the
// aggregator alone decides whether the request as a whole failed. An empty
// match list with an empty error string always means "nothing found", which
// callers can distinguish from "every backend was down".
package retrieval

import (
	"time"

	"github.com/quarryhq/quarry/internal/config"
)

// Complexity is the classified complexity of a query.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Tier is a retrieval strategy.
type Tier string

const (
	// TierFast fans out once with no follow-up round.
	TierFast Tier = "fast"

	// TierAdaptive fans out, then may issue planner-decided follow-ups.
	TierAdaptive Tier = "adaptive"

	// TierDeep always runs a second synthesis pass over every adapter.
	TierDeep Tier = "deep"
)

// Query is a classified search request. Immutable once built.
type Query struct {
	// Text is the expanded query text sent to keyword backends.
	Text string

	// Raw is the original text before expansion.
	Raw string

	// Embedding is the query vector, nil when embedding was unavailable.
	Embedding []float32

	// Complexity is the classifier's verdict on Raw.
	Complexity Complexity
}

// Match is one result from one backend, normalized into the common shape.
type Match struct {
	// StableID is the cross-source identity key. Two matches with the same
	// StableID are the same underlying item and merge rather than duplicate.
	StableID string `json:"stable_id"`

	Content  string `json:"content"`
	Title    string `json:"title"`
	Category string `json:"category"`

	// RawScore is the backend's own relevance in [0,1]. Not comparable
	// across backends; fusion ranks by position instead.
	RawScore float64 `json:"raw_score"`

	// SourceTags records which backends produced this match.
	SourceTags []string `json:"source_tags"`
}

// OutcomeStatus is the terminal state of one adapter call.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusEmpty   OutcomeStatus = "empty"
	StatusTimeout OutcomeStatus = "timeout"
	StatusError   OutcomeStatus = "error"
)

// SourceOutcome is one adapter's result for one request. Never mutated
// after creation.
type SourceOutcome struct {
	SourceID config.SourceID
	Status   OutcomeStatus

	// RankedMatches is best-first per the backend's own relevance.
	RankedMatches []Match

	Latency time.Duration

	// Err holds the absorbed failure for logging. Nil unless Status is
	// timeout or error.
	Err error
}

// Failed reports whether the outcome contributes nothing to fusion.
func (o SourceOutcome) Failed() bool {
	return o.Status == StatusTimeout || o.Status == StatusError
}

// FusedCandidate is one item after rank fusion.
type FusedCandidate struct {
	StableID   string
	FusedScore float64

	// ContributingSources in first-seen order.
	ContributingSources []config.SourceID

	// BestMatch is the match from the highest-ranked contributing source.
	BestMatch Match
}

// RerankedResult pairs a candidate with its cross-encoder score. Score is
// nil when the candidate had no content to score or the reranker was
// skipped; the candidate keeps its original position either way.
type RerankedResult struct {
	StableID string
	Score    *float64
}

// SearchResult is the engine's top-level response.
//
// Invariant: Error is non-empty iff SourcesAttempted is non-empty and
// SourcesSucceeded is empty. Empty Matches with empty Error means the
// request succeeded and nothing relevant exists.
type SearchResult struct {
	Matches           []Match           `json:"matches"`
	SourcesAttempted  []config.SourceID `json:"sources_attempted"`
	SourcesSucceeded  []config.SourceID `json:"sources_succeeded"`
	Error             string            `json:"error,omitempty"`
	Tier              Tier              `json:"tier"`
	Elapsed           time.Duration     `json:"elapsed"`
	FollowupQueries   []string          `json:"followup_queries,omitempty"`
}
