package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/dgnsrekt/readaloud/internal/page"
)

var (
	// Yellow background, black text
	wordHighlightStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("226")).
				Foreground(lipgloss.Color("0")).
				Bold(true)

	selectionStyle = lipgloss.NewStyle().
			Reverse(true)
)

// cellSpan is a range of cells on one line, end exclusive.
type cellSpan struct {
	line  int
	start int
	end   int
}

// rectSpans turns a highlight rect into per-line spans. Continuation lines
// of a multi-line rect start at the left edge.
func rectSpans(r page.Rect, lines []string) []cellSpan {
	if r.Empty() {
		return nil
	}
	var spans []cellSpan
	for i := 0; i < r.Height; i++ {
		line := r.Line + i
		if line < 0 || line >= len(lines) {
			continue
		}
		width := runewidth.StringWidth(lines[line])
		start, end := 0, width
		if i == 0 {
			start = r.Col
			if r.Height == 1 {
				end = min(r.Col+r.Width, width)
			}
		}
		if start < end {
			spans = append(spans, cellSpan{line: line, start: start, end: end})
		}
	}
	return spans
}

// selectionSpans returns the spans between two cells, in either order.
func selectionSpans(a, b cell, lines []string) []cellSpan {
	if b.before(a) {
		a, b = b, a
	}
	var spans []cellSpan
	for line := max(a.line, 0); line <= b.line && line < len(lines); line++ {
		start, end := 0, runewidth.StringWidth(lines[line])
		if line == a.line {
			start = a.col
		}
		if line == b.line {
			end = min(b.col, end)
		}
		if start < end {
			spans = append(spans, cellSpan{line: line, start: start, end: end})
		}
	}
	return spans
}

// splitCells cuts s into the parts before, inside and after the cell range
// [start, end).
func splitCells(s string, start, end int) (string, string, string) {
	var pre, mid, post strings.Builder
	col := 0
	for _, r := range s {
		switch {
		case col < start:
			pre.WriteRune(r)
		case col < end:
			mid.WriteRune(r)
		default:
			post.WriteRune(r)
		}
		col += runewidth.RuneWidth(r)
	}
	return pre.String(), mid.String(), post.String()
}

// paint styles the given spans of lines. Spans on the same line must not
// overlap. The input slice is not modified.
func paint(lines []string, style lipgloss.Style, spans ...cellSpan) []string {
	if len(spans) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	copy(out, lines)
	for _, sp := range spans {
		if sp.line < 0 || sp.line >= len(out) {
			continue
		}
		pre, mid, post := splitCells(lines[sp.line], sp.start, sp.end)
		if mid == "" {
			continue
		}
		out[sp.line] = pre + style.Render(mid) + post
	}
	return out
}
