package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text string
		want Complexity
	}{
		{"client patterns", ComplexitySimple},
		{"acme onboarding", ComplexitySimple},
		{"billing", ComplexitySimple},
		{"how does acme handle billing disputes", ComplexityMedium},
		{"decisions about pricing and the rationale behind them", ComplexityMedium},
		{"compare how acme and globex handle renewals, and summarize the differences between their pricing decisions across the last three projects", ComplexityComplex},
		{"why did we choose postgres over sqlite, how did that relate to the migration history, and what tradeoffs were discussed?", ComplexityComplex},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.text), "text=%q", tt.text)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier()
	text := "how do client patterns relate to pricing decisions"
	first := c.Classify(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(text))
	}
}

func TestTierFor(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, TierFast, c.TierFor(ComplexitySimple))
	assert.Equal(t, TierAdaptive, c.TierFor(ComplexityMedium))
	assert.Equal(t, TierDeep, c.TierFor(ComplexityComplex))
}
