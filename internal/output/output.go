// Package output provides styled CLI output. Styling is dropped when
// stdout is not a terminal or NO_COLOR is set, so piped output stays plain.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Writer renders CLI output with optional styling.
type Writer struct {
	out io.Writer

	title   lipgloss.Style
	meta    lipgloss.Style
	tag     lipgloss.Style
	score   lipgloss.Style
	errText lipgloss.Style
	warn    lipgloss.Style
	ok      lipgloss.Style
}

// New creates a Writer, detecting terminal capability from out.
func New(out io.Writer) *Writer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if os.Getenv("NO_COLOR") != "" {
		styled = false
	}
	return newWriter(out, styled)
}

func newWriter(out io.Writer, styled bool) *Writer {
	w := &Writer{out: out}
	if !styled {
		plain := lipgloss.NewStyle()
		w.title, w.meta, w.tag, w.score = plain, plain, plain, plain
		w.errText, w.warn, w.ok = plain, plain, plain
		return w
	}
	w.title = lipgloss.NewStyle().Bold(true)
	w.meta = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	w.tag = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	w.score = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	w.errText = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	w.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	w.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	return w
}

// Result prints one search result.
func (w *Writer) Result(rank int, title, id, category, tag string, score float64, content string) {
	header := fmt.Sprintf("%d. %s", rank, w.title.Render(title))
	if title == "" {
		header = fmt.Sprintf("%d. %s", rank, w.title.Render(id))
	}
	_, _ = fmt.Fprintf(w.out, "%s  %s %s\n",
		header,
		w.tag.Render("["+tag+"]"),
		w.score.Render(fmt.Sprintf("%.3f", score)))

	meta := id
	if category != "" {
		meta += "  " + category
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", w.meta.Render(meta))

	for _, line := range snippetLines(content, 3) {
		_, _ = fmt.Fprintf(w.out, "   %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Summary prints the per-request footer.
func (w *Writer) Summary(matches int, tier string, attempted, succeeded int, elapsed string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.meta.Render(fmt.Sprintf(
		"%d results  tier=%s  sources=%d/%d  %s", matches, tier, succeeded, attempted, elapsed)))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.ok.Render(msg))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.warn.Render("warning: "+msg))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.errText.Render("error: "+msg))
}

// Plain prints an unstyled line.
func (w *Writer) Plain(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// snippetLines trims content to at most n display lines.
func snippetLines(content string, n int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = append(lines[:n:n], "…")
	}
	return lines
}
