package page

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Rect is a region of the laid out page measured in terminal cells. Line is
// relative to the top of the page.
type Rect struct {
	Line   int
	Col    int
	Width  int
	Height int
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// placement is one word of a text node as placed on screen.
type placement struct {
	node   NodeID
	offset int
	word   string
	line   int
	col    int
	width  int
	spaced bool // separated from the previous word on the line
}

// Layout is the page wrapped to a fixed width.
type Layout struct {
	Width  int
	lines  []string
	places map[NodeID][]placement
	byLine [][]placement
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "details": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "summary": true,
	"table": true, "tr": true, "ul": true,
}

// spacedTags get an empty line before and after.
var spacedTags = map[string]bool{
	"blockquote": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "ol": true, "p": true, "pre": true,
	"table": true, "ul": true,
}

type layoutBuilder struct {
	l       *Layout
	width   int
	cur     strings.Builder
	col     int
	spans   []placement
	pending bool
}

func buildLayout(body *Node, width int) *Layout {
	if width <= 0 {
		width = math.MaxInt32
	}
	b := &layoutBuilder{
		l:     &Layout{Width: width, places: make(map[NodeID][]placement)},
		width: width,
	}
	b.walk(body)
	b.flush()
	for len(b.l.lines) > 0 && b.l.lines[len(b.l.lines)-1] == "" {
		b.l.lines = b.l.lines[:len(b.l.lines)-1]
		b.l.byLine = b.l.byLine[:len(b.l.byLine)-1]
	}
	return b.l
}

func (b *layoutBuilder) walk(n *Node) {
	if n == nil {
		return
	}
	if n.Type == TextNode {
		b.text(n)
		return
	}
	if skipTags[n.Tag] || hidden(n) {
		return
	}
	switch n.Tag {
	case "br":
		b.newline()
		return
	case "hr":
		b.blank()
		return
	}

	block := blockTags[n.Tag]
	if spacedTags[n.Tag] {
		b.blank()
	} else if block {
		b.flush()
	}
	if n.Tag == "li" {
		b.decorate("•")
	}
	for _, c := range n.Children {
		b.walk(c)
	}
	if spacedTags[n.Tag] {
		b.blank()
	} else if block {
		b.flush()
	}
}

func (b *layoutBuilder) text(n *Node) {
	s := n.Text
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if b.col > 0 {
				b.pending = true
			}
			i += size
			continue
		}
		j := i
		for j < len(s) {
			r, size := utf8.DecodeRuneInString(s[j:])
			if unicode.IsSpace(r) {
				break
			}
			j += size
		}
		b.word(n.ID, i, s[i:j])
		i = j
	}
}

func (b *layoutBuilder) word(id NodeID, offset int, w string) {
	width := runewidth.StringWidth(w)
	spaced := false
	if b.pending && b.col > 0 {
		if b.col+1+width > b.width {
			b.newline()
		} else {
			b.cur.WriteByte(' ')
			b.col++
			spaced = true
		}
	}
	p := placement{
		node:   id,
		offset: offset,
		word:   w,
		line:   len(b.l.lines),
		col:    b.col,
		width:  width,
		spaced: spaced,
	}
	b.l.places[id] = append(b.l.places[id], p)
	b.spans = append(b.spans, p)
	b.cur.WriteString(w)
	b.col += width
	b.pending = false
}

// decorate writes text that belongs to no node. The next word is separated
// from it by a space.
func (b *layoutBuilder) decorate(s string) {
	b.cur.WriteString(s)
	b.col += runewidth.StringWidth(s)
	b.pending = true
}

func (b *layoutBuilder) newline() {
	b.l.lines = append(b.l.lines, b.cur.String())
	b.l.byLine = append(b.l.byLine, b.spans)
	b.cur.Reset()
	b.spans = nil
	b.col = 0
	b.pending = false
}

func (b *layoutBuilder) flush() {
	if b.col > 0 {
		b.newline()
	}
}

func (b *layoutBuilder) blank() {
	b.flush()
	if n := len(b.l.lines); n > 0 && b.l.lines[n-1] != "" {
		b.newline()
	}
}

// Lines returns the rendered lines.
func (l *Layout) Lines() []string {
	return l.lines
}

// Rect locates length bytes of a node's text starting at offset. The result
// is empty when that range was not laid out.
func (l *Layout) Rect(id NodeID, offset, length int) Rect {
	ps := l.places[id]
	end := offset + length
	for i, p := range ps {
		if offset < p.offset || offset >= p.offset+len(p.word) {
			continue
		}
		col := p.col + runewidth.StringWidth(p.word[:offset-p.offset])
		if end <= p.offset+len(p.word) {
			return Rect{Line: p.line, Col: col, Width: runewidth.StringWidth(p.word[offset-p.offset : end-p.offset]), Height: 1}
		}
		last := p
		for _, q := range ps[i+1:] {
			if q.offset >= end {
				break
			}
			last = q
		}
		stop := min(end-last.offset, len(last.word))
		if last.line == p.line {
			return Rect{Line: p.line, Col: col, Width: last.col + runewidth.StringWidth(last.word[:stop]) - col, Height: 1}
		}
		return Rect{Line: p.line, Col: col, Width: runewidth.StringWidth(l.lines[p.line]) - col, Height: last.line - p.line + 1}
	}
	return Rect{}
}

// NodeAt returns the text node under a cell, or the closest one on the same
// line.
func (l *Layout) NodeAt(line, col int) (NodeID, bool) {
	if line < 0 || line >= len(l.byLine) || len(l.byLine[line]) == 0 {
		return 0, false
	}
	spans := l.byLine[line]
	for _, p := range spans {
		if col < p.col+p.width {
			return p.node, true
		}
	}
	return spans[len(spans)-1].node, true
}

// LineEnd returns the cell just past the last character of a line.
func (l *Layout) LineEnd(line int) int {
	if line < 0 || line >= len(l.lines) {
		return 0
	}
	return runewidth.StringWidth(l.lines[line])
}

// TextBetween returns the words laid out between two cells, inclusive of the
// start and exclusive of the end.
func (l *Layout) TextBetween(startLine, startCol, endLine, endCol int) string {
	if endLine < startLine || (endLine == startLine && endCol < startCol) {
		startLine, startCol, endLine, endCol = endLine, endCol, startLine, startCol
	}
	var sb strings.Builder
	for line := max(startLine, 0); line <= endLine && line < len(l.byLine); line++ {
		for i, p := range l.byLine[line] {
			if line == startLine && p.col+p.width <= startCol {
				continue
			}
			if line == endLine && p.col >= endCol {
				break
			}
			if sb.Len() > 0 && (p.spaced || i == 0) {
				sb.WriteByte(' ')
			}
			sb.WriteString(p.word)
		}
	}
	return sb.String()
}
