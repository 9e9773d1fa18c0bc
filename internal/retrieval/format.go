package retrieval

import "github.com/quarryhq/quarry/internal/config"

// Provenance tags attached to formatted matches.
const (
	TagSemantic = "semantic"
	TagKeyword  = "keyword"
	TagGraph    = "graph"
	TagHybrid   = "hybrid"
)

// Format turns ordered reranked results back into matches, deduplicating by
// stable id, truncating to limit, and tagging provenance. Fusion already
// merges cross-source duplicates, but the boundary dedupes again rather
// than trusting upstream.
func Format(ordered []RerankedResult, candidatesByID map[string]FusedCandidate, limit int) []Match {
	if limit <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, r := range ordered {
		if len(matches) >= limit {
			break
		}
		if _, dup := seen[r.StableID]; dup {
			continue
		}
		candidate, ok := candidatesByID[r.StableID]
		if !ok {
			continue
		}
		seen[r.StableID] = struct{}{}

		match := candidate.BestMatch
		match.SourceTags = []string{provenanceTag(candidate.ContributingSources)}
		matches = append(matches, match)
	}
	return matches
}

// provenanceTag names where a candidate came from: a single backend keeps
// that backend's tag, more than one distinct backend is "hybrid".
func provenanceTag(sources []config.SourceID) string {
	distinct := make(map[config.SourceID]struct{}, len(sources))
	for _, s := range sources {
		distinct[s] = struct{}{}
	}
	if len(distinct) > 1 {
		return TagHybrid
	}
	for s := range distinct {
		switch s {
		case config.SourceSemantic:
			return TagSemantic
		case config.SourceGraph:
			return TagGraph
		default:
			return TagKeyword
		}
	}
	return TagKeyword
}
