package retrieval

import "strings"

// FollowupPlanner decides whether an adaptive or deep search should issue a
// second round of adapter calls. The production planner may consult an
// external reasoning service; the engine only depends on this contract.
type FollowupPlanner interface {
	// PlanFollowups inspects the first round and returns zero or more
	// follow-up query texts. An empty slice means stop.
	PlanFollowups(query Query, firstRound []SourceOutcome, fused []FusedCandidate) []string
}

// HeuristicPlanner is the default planner: purely local rules, no external
// calls, and at most maxFollowups follow-up queries.
type HeuristicPlanner struct {
	maxFollowups int
}

// NewHeuristicPlanner returns the default follow-up planner.
func NewHeuristicPlanner() *HeuristicPlanner {
	return &HeuristicPlanner{maxFollowups: 2}
}

var _ FollowupPlanner = (*HeuristicPlanner)(nil)

// PlanFollowups proposes narrower queries when the first round came back
// thin: fewer than three fused candidates triggers a retry on the dominant
// category, and a multi-part query is split on its connectors.
func (p *HeuristicPlanner) PlanFollowups(query Query, firstRound []SourceOutcome, fused []FusedCandidate) []string {
	var followups []string

	if parts := splitClauses(query.Raw); len(parts) > 1 {
		for _, part := range parts {
			if len(followups) >= p.maxFollowups {
				break
			}
			if part != "" && !strings.EqualFold(part, query.Raw) {
				followups = append(followups, part)
			}
		}
		return followups
	}

	if len(fused) >= 3 {
		return nil
	}
	if cat := dominantCategory(fused); cat != "" && len(followups) < p.maxFollowups {
		followups = append(followups, query.Raw+" "+cat)
	}
	return followups
}

// splitClauses breaks a multi-part question into its clauses.
func splitClauses(text string) []string {
	lower := strings.ToLower(text)
	for _, sep := range []string{" and ", ", ", "; "} {
		if strings.Contains(lower, sep) {
			var parts []string
			for _, p := range strings.Split(lower, sep) {
				p = strings.TrimSpace(p)
				if len(strings.Fields(p)) >= 2 {
					parts = append(parts, p)
				}
			}
			if len(parts) > 1 {
				return parts
			}
		}
	}
	return nil
}

// dominantCategory returns the most common category among fused candidates.
func dominantCategory(fused []FusedCandidate) string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, c := range fused {
		cat := c.BestMatch.Category
		if cat == "" {
			continue
		}
		counts[cat]++
		if counts[cat] > bestCount {
			best, bestCount = cat, counts[cat]
		}
	}
	return best
}
