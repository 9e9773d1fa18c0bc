package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhq/quarry/internal/config"
)

func TestFormatProvenanceTags(t *testing.T) {
	candidates := map[string]FusedCandidate{
		"rel": {
			StableID:            "rel",
			ContributingSources: []config.SourceID{config.SourceRelational},
			BestMatch:           Match{StableID: "rel", Title: "keyword hit"},
		},
		"sem": {
			StableID:            "sem",
			ContributingSources: []config.SourceID{config.SourceSemantic},
			BestMatch:           Match{StableID: "sem", Title: "semantic hit"},
		},
		"both": {
			StableID:            "both",
			ContributingSources: []config.SourceID{config.SourceRelational, config.SourceSemantic},
			BestMatch:           Match{StableID: "both", Title: "hybrid hit"},
		},
		"graphed": {
			StableID:            "graphed",
			ContributingSources: []config.SourceID{config.SourceGraph},
			BestMatch:           Match{StableID: "graphed", Title: "graph hit"},
		},
	}
	ordered := []RerankedResult{
		{StableID: "both"}, {StableID: "rel"}, {StableID: "sem"}, {StableID: "graphed"},
	}

	matches := Format(ordered, candidates, 10)
	require.Len(t, matches, 4)
	assert.Equal(t, []string{TagHybrid}, matches[0].SourceTags)
	assert.Equal(t, []string{TagKeyword}, matches[1].SourceTags)
	assert.Equal(t, []string{TagSemantic}, matches[2].SourceTags)
	assert.Equal(t, []string{TagGraph}, matches[3].SourceTags)
}

func TestFormatDeduplicatesAndTruncates(t *testing.T) {
	candidates := map[string]FusedCandidate{
		"a": {StableID: "a", BestMatch: Match{StableID: "a"}},
		"b": {StableID: "b", BestMatch: Match{StableID: "b"}},
		"c": {StableID: "c", BestMatch: Match{StableID: "c"}},
	}
	ordered := []RerankedResult{
		{StableID: "a"}, {StableID: "a"}, {StableID: "b"}, {StableID: "c"},
	}

	matches := Format(ordered, candidates, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].StableID)
	assert.Equal(t, "b", matches[1].StableID, "duplicate id is dropped, not double-counted")
}

func TestFormatSameSourceTwiceIsNotHybrid(t *testing.T) {
	// A candidate that came from two rounds of the same backend is still
	// single-source.
	candidates := map[string]FusedCandidate{
		"a": {
			StableID:            "a",
			ContributingSources: []config.SourceID{config.SourceRelational, config.SourceRelational},
			BestMatch:           Match{StableID: "a"},
		},
	}
	matches := Format([]RerankedResult{{StableID: "a"}}, candidates, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{TagKeyword}, matches[0].SourceTags)
}

func TestAggregateOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		outcomes  []SourceOutcome
		succeeded int
		failed    int
		allFailed bool
	}{
		{
			name:      "no outcomes",
			outcomes:  nil,
			allFailed: false,
		},
		{
			name: "all failed",
			outcomes: []SourceOutcome{
				{SourceID: config.SourceRelational, Status: StatusTimeout},
				{SourceID: config.SourceSemantic, Status: StatusError},
			},
			failed:    2,
			allFailed: true,
		},
		{
			name: "empty counts as success",
			outcomes: []SourceOutcome{
				{SourceID: config.SourceRelational, Status: StatusEmpty},
				{SourceID: config.SourceSemantic, Status: StatusTimeout},
			},
			succeeded: 1,
			failed:    1,
			allFailed: false,
		},
		{
			name: "all succeeded",
			outcomes: []SourceOutcome{
				{SourceID: config.SourceRelational, Status: StatusSuccess},
				{SourceID: config.SourceSemantic, Status: StatusEmpty},
			},
			succeeded: 2,
			allFailed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := AggregateOutcomes(tt.outcomes)
			assert.Len(t, agg.Succeeded, tt.succeeded)
			assert.Len(t, agg.Failed, tt.failed)
			assert.Equal(t, tt.allFailed, agg.AllFailed)
		})
	}
}
