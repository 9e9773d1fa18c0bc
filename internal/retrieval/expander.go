package retrieval

import "strings"

// Expander broadens a query with domain synonyms before it is embedded or
// sent to keyword backends. Expansion is deterministic and idempotent:
// Expand(Expand(q)) == Expand(q), because a synonym already present in the
// text is never appended again.
type Expander struct {
	synonyms map[string][]string
}

// NewExpander returns an expander with the built-in synonym table.
func NewExpander() *Expander {
	return &Expander{synonyms: defaultSynonyms}
}

// Expand appends related terms for any recognized word in the query. The
// original text is always the prefix of the result, so exact-phrase
// relevance in keyword backends is unaffected.
func (e *Expander) Expand(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return trimmed
	}

	lower := strings.ToLower(trimmed)
	present := make(map[string]struct{})
	for _, w := range strings.Fields(lower) {
		present[w] = struct{}{}
	}

	var extra []string
	for _, w := range strings.Fields(lower) {
		for _, syn := range e.synonyms[w] {
			if _, ok := present[syn]; ok {
				continue
			}
			present[syn] = struct{}{}
			extra = append(extra, syn)
		}
	}

	if len(extra) == 0 {
		return trimmed
	}
	return trimmed + " " + strings.Join(extra, " ")
}
