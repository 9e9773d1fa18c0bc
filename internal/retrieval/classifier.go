package retrieval

import (
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// classifierCacheSize bounds memoized classifications; repeated queries
// are common in agent sessions.
const classifierCacheSize = 512

// Classifier scores query complexity with a deterministic heuristic. No
// external calls and no failure mode: the same text always classifies the
// same way.
type Classifier struct {
	cache *lru.Cache[string, Complexity]
}

// NewClassifier returns a query classifier.
func NewClassifier() *Classifier {
	cache, _ := lru.New[string, Complexity](classifierCacheSize)
	return &Classifier{cache: cache}
}

// Connectors that signal a multi-part question.
var multiPartConnectors = []string{
	" and ", " or ", " but ", " versus ", " vs ", " compared to ",
	" as well as ", " along with ", " then ",
}

// Terms whose presence suggests the query needs reasoning over several
// memories rather than a direct lookup.
var ambiguitySignals = map[string]struct{}{
	"why":       {},
	"how":       {},
	"compare":   {},
	"relate":    {},
	"related":   {},
	"between":   {},
	"across":    {},
	"history":   {},
	"evolution": {},
	"tradeoff":  {},
	"summary":   {},
	"summarize": {},
}

// Classify maps query text to a complexity tier.
//
// Scoring: word count (0-2 points), multi-part connectors (1 each, max 2),
// clause separators (1 each, max 2), ambiguity terms (1 each, max 2).
// Total <=1 is simple, 2-3 is medium, >=4 is complex.
func (c *Classifier) Classify(text string) Complexity {
	if cached, ok := c.cache.Get(text); ok {
		return cached
	}
	complexity := c.classify(text)
	c.cache.Add(text, complexity)
	return complexity
}

func (c *Classifier) classify(text string) Complexity {
	normalized := " " + strings.ToLower(strings.TrimSpace(text)) + " "
	words := strings.Fields(normalized)

	score := 0

	switch {
	case len(words) > 12:
		score += 2
	case len(words) > 5:
		score++
	}

	connectors := 0
	for _, conn := range multiPartConnectors {
		connectors += strings.Count(normalized, conn)
	}
	score += min(connectors, 2)

	clauses := 0
	for _, r := range normalized {
		if r == ',' || r == ';' || r == '?' {
			clauses++
		}
	}
	score += min(clauses, 2)

	ambiguous := 0
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if _, ok := ambiguitySignals[w]; ok {
			ambiguous++
		}
	}
	score += min(ambiguous, 2)

	switch {
	case score <= 1:
		return ComplexitySimple
	case score <= 3:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}

// TierFor maps a complexity to its default routing tier.
func (c *Classifier) TierFor(complexity Complexity) Tier {
	switch complexity {
	case ComplexityComplex:
		return TierDeep
	case ComplexityMedium:
		return TierAdaptive
	default:
		return TierFast
	}
}
