package retrieval

// Synonym groups for query expansion. Each word in a group maps to every
// other word in the same group, so the table is closed under expansion and
// a second Expand pass finds nothing new to add.
var synonymGroups = [][]string{
	{"client", "customer", "account"},
	{"pattern", "habit", "tendency"},
	{"decision", "choice", "rationale"},
	{"meeting", "call", "session"},
	{"bug", "defect", "issue"},
	{"error", "failure", "fault"},
	{"config", "configuration", "settings"},
	{"deploy", "release", "ship"},
	{"doc", "document", "documentation"},
	{"preference", "prefers", "likes"},
	{"project", "engagement", "initiative"},
	{"deadline", "due", "milestone"},
	{"feedback", "review", "critique"},
	{"email", "message", "correspondence"},
	{"price", "pricing", "cost"},
}

var defaultSynonyms = buildSynonyms(synonymGroups)

func buildSynonyms(groups [][]string) map[string][]string {
	out := make(map[string][]string)
	for _, group := range groups {
		for _, w := range group {
			for _, other := range group {
				if other != w {
					out[w] = append(out[w], other)
				}
			}
		}
	}
	return out
}
