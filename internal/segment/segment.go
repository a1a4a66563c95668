// Package segment maps the words of a text back to the page nodes that
// display them.
package segment

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgnsrekt/readaloud/internal/page"
)

// Ref points at a range of a text node.
type Ref struct {
	Node   page.NodeID
	Offset int // byte offset into the node text
	Length int // byte length of the word
}

// WordSegment is one word of the source text located on the page.
type WordSegment struct {
	Word string
	Ref  Ref
	// WordIndex is the position of the word in Words(text).
	WordIndex int
	// Position is the byte offset of the match in the flattened page text.
	Position int
}

// Words splits text on whitespace, dropping empty tokens.
func Words(text string) []string {
	return strings.Fields(text)
}

// flat is the page text concatenated into one stream.
type flat struct {
	text   string
	starts []int
	nodes  []page.Text
}

func flatten(nodes []page.Text) flat {
	var sb strings.Builder
	f := flat{nodes: nodes, starts: make([]int, len(nodes))}
	for i, n := range nodes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		f.starts[i] = sb.Len()
		sb.WriteString(n.Text)
	}
	f.text = fold(sb.String())
	return f
}

// locate maps a position in the stream to a node and an offset inside it.
// Positions on a separator resolve to nothing.
func (f flat) locate(pos int) (page.NodeID, int, bool) {
	i := sort.Search(len(f.starts), func(i int) bool { return f.starts[i] > pos }) - 1
	if i < 0 {
		return 0, 0, false
	}
	off := pos - f.starts[i]
	if off >= len(f.nodes[i].Text) {
		return 0, 0, false
	}
	return f.nodes[i].ID, off, true
}

// Build locates every word of text in nodes. The search runs forward only:
// each word is looked up from the end of the previous match, and a word
// that cannot be found is skipped without moving the cursor. The result is
// therefore ordered by both WordIndex and Position.
func Build(text string, nodes []page.Text) []WordSegment {
	words := Words(text)
	if len(words) == 0 || len(nodes) == 0 {
		return nil
	}
	f := flatten(nodes)

	segments := make([]WordSegment, 0, len(words))
	cursor := 0
	for i, w := range words {
		at := strings.Index(f.text[cursor:], fold(w))
		if at < 0 {
			continue
		}
		pos := cursor + at
		cursor = pos + len(w)

		id, off, ok := f.locate(pos)
		if !ok {
			continue
		}
		segments = append(segments, WordSegment{
			Word:      w,
			Ref:       Ref{Node: id, Offset: off, Length: len(w)},
			WordIndex: i,
			Position:  pos,
		})
	}
	return segments
}

// fold lowercases s without changing its byte length, so offsets found in
// the folded text are valid in the original. Runes whose lowercase form has
// a different encoded size are kept as they are.
func fold(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError || size > 1 {
			if l := unicode.ToLower(r); l != r && utf8.RuneLen(l) == size {
				sb.WriteRune(l)
				i += size
				continue
			}
		}
		sb.WriteString(s[i : i+size])
		i += size
	}
	return sb.String()
}
