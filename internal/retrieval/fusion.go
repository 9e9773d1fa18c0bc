package retrieval

import (
	"sort"

	"github.com/quarryhq/quarry/internal/config"
)

// DefaultRRFConstant is the damping parameter k when the caller passes 0.
// Larger k flattens rank position's influence.
const DefaultRRFConstant = 60

// Fuse combines per-source rankings into one list via weighted Reciprocal
// Rank Fusion. Each match at 1-indexed rank r in source s contributes
// weight[s] / (k + r) to its stable id's accumulator. Failed outcomes
// contribute nothing, and a stable id repeated within one outcome counts
// only at its best rank there.
//
// Ordering is fully deterministic: descending fused score, then first-seen
// source order, then original rank within that source. Candidates are
// tracked in encounter order so ties never depend on map iteration.
func Fuse(outcomes []SourceOutcome, weights map[config.SourceID]float64, k int) []FusedCandidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type entry struct {
		candidate FusedCandidate
		seenOrder int // encounter order across all sources
		bestRank  int // rank in the first contributing source
	}

	byID := make(map[string]*entry)
	var order []*entry

	for _, outcome := range outcomes {
		if outcome.Failed() {
			continue
		}
		weight, ok := weights[outcome.SourceID]
		if !ok {
			weight = 1.0
		}
		// A backend repeating a stable id within one response only counts
		// at its best rank; later repeats keep their positions but add
		// nothing.
		seenHere := make(map[string]struct{}, len(outcome.RankedMatches))
		for i, match := range outcome.RankedMatches {
			if _, dup := seenHere[match.StableID]; dup {
				continue
			}
			seenHere[match.StableID] = struct{}{}

			rank := i + 1
			contribution := weight / float64(k+rank)

			e, seen := byID[match.StableID]
			if !seen {
				e = &entry{
					candidate: FusedCandidate{
						StableID:  match.StableID,
						BestMatch: match,
					},
					seenOrder: len(order),
					bestRank:  rank,
				}
				byID[match.StableID] = e
				order = append(order, e)
			}

			e.candidate.FusedScore += contribution
			e.candidate.ContributingSources = append(e.candidate.ContributingSources, outcome.SourceID)
			if match.RawScore > e.candidate.BestMatch.RawScore {
				e.candidate.BestMatch = match
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.candidate.FusedScore != b.candidate.FusedScore {
			return a.candidate.FusedScore > b.candidate.FusedScore
		}
		if a.seenOrder != b.seenOrder {
			return a.seenOrder < b.seenOrder
		}
		return a.bestRank < b.bestRank
	})

	fused := make([]FusedCandidate, len(order))
	for i, e := range order {
		fused[i] = e.candidate
	}
	return fused
}
