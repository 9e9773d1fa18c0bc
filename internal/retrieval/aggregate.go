package retrieval

import "github.com/quarryhq/quarry/internal/config"

// Aggregate is the per-request outcome tally.
type Aggregate struct {
	Succeeded []config.SourceID
	Failed    []config.SourceID

	// AllFailed is true iff at least one source was attempted and every
	// attempt ended in timeout or error. An empty result still counts as
	// a success; this flag is derived from statuses alone, never from
	// whether any content came back.
	AllFailed bool
}

// AggregateOutcomes tallies adapter outcomes. Source order follows outcome
// order.
func AggregateOutcomes(outcomes []SourceOutcome) Aggregate {
	var agg Aggregate
	for _, o := range outcomes {
		if o.Failed() {
			agg.Failed = append(agg.Failed, o.SourceID)
		} else {
			agg.Succeeded = append(agg.Succeeded, o.SourceID)
		}
	}
	agg.AllFailed = len(outcomes) > 0 && len(agg.Succeeded) == 0
	return agg
}
