package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultPlain(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf, false)

	w.Result(1, "acme prefs", "m1", "client", "hybrid", 0.912, "line one\nline two")
	got := buf.String()

	assert.Contains(t, got, "1. acme prefs")
	assert.Contains(t, got, "[hybrid]")
	assert.Contains(t, got, "0.912")
	assert.Contains(t, got, "m1  client")
	assert.Contains(t, got, "line one")
}

func TestResultFallsBackToID(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf, false)

	w.Result(2, "", "m7", "", "keyword", 0.5, "body")
	assert.Contains(t, buf.String(), "2. m7")
}

func TestSnippetLinesTruncates(t *testing.T) {
	lines := snippetLines("a\nb\nc\nd\ne", 3)
	assert.Equal(t, []string{"a", "b", "c", "…"}, lines)
	assert.Nil(t, snippetLines("   ", 3))
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	newWriter(&buf, false).Summary(4, "fast", 3, 2, "120ms")
	assert.True(t, strings.Contains(buf.String(), "4 results  tier=fast  sources=2/3  120ms"))
}
