package page

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoBody is returned when a parsed document has no body element.
	ErrNoBody = errors.New("document has no body")
	// ErrUnknownNode is returned when a mutation targets a node that is not live.
	ErrUnknownNode = errors.New("unknown node")
)

// NodeID identifies a node for the lifetime of the process.
type NodeID uint64

// nextID is shared by every document so identifiers are never reused, even
// across a Replace.
var nextID atomic.Uint64

func newID() NodeID {
	return NodeID(nextID.Add(1))
}

// NodeType distinguishes elements from text.
type NodeType int

const (
	// ElementNode is an HTML element.
	ElementNode NodeType = iota
	// TextNode carries character data.
	TextNode
)

// Node is one node of the document tree.
type Node struct {
	ID       NodeID
	Type     NodeType
	Tag      string // lowercase element name, empty for text
	Text     string
	Attrs    map[string]string
	Parent   *Node
	Children []*Node
}

// Text is a text-bearing node as seen by the segmenter.
type Text struct {
	ID   NodeID
	Text string
}

// Document is a page with stable node identities. All methods are safe for
// concurrent use.
type Document struct {
	mu         sync.RWMutex
	title      string
	body       *Node
	index      map[NodeID]*Node
	generation uint64

	width  int
	layout *Layout
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse html: %w", err)
	}
	return fromHTML(root)
}

// ParseMarkdown converts markdown to HTML and parses the result.
func ParseMarkdown(r io.Reader) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read markdown: %w", err)
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("unable to convert markdown: %w", err)
	}
	return Parse(&buf)
}

// ParseString is a convenience wrapper used mostly by tests.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func fromHTML(root *html.Node) (*Document, error) {
	d := &Document{index: make(map[NodeID]*Node)}

	var body *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if d.title == "" && n.FirstChild != nil {
					d.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Body:
				if body == nil {
					body = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(root)
	if body == nil {
		return nil, ErrNoBody
	}

	d.body = d.convert(body, nil)
	return d, nil
}

func (d *Document) convert(n *html.Node, parent *Node) *Node {
	var node *Node
	switch n.Type {
	case html.ElementNode:
		node = &Node{ID: newID(), Type: ElementNode, Tag: strings.ToLower(n.Data), Parent: parent}
		if len(n.Attr) > 0 {
			node.Attrs = make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				node.Attrs[strings.ToLower(a.Key)] = a.Val
			}
		}
	case html.TextNode:
		return d.adopt(&Node{ID: newID(), Type: TextNode, Text: n.Data, Parent: parent})
	default:
		return nil
	}
	d.adopt(node)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := d.convert(c, node); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

func (d *Document) adopt(n *Node) *Node {
	d.index[n.ID] = n
	return n
}

// Title returns the document title, if any.
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

// Generation counts mutations. It changes whenever a previously recorded
// reference may have become invalid.
func (d *Document) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// Lookup returns the current text of a live text node.
func (d *Document) Lookup(id NodeID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.index[id]
	if !ok || n.Type != TextNode {
		return "", false
	}
	return n.Text, true
}

// SetText replaces the text of a live text node.
func (d *Document) SetText(id NodeID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.index[id]
	if !ok || n.Type != TextNode {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	n.Text = text
	d.touch()
	return nil
}

// Remove detaches a node and its subtree from the document.
func (d *Document) Remove(id NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.index[id]
	if !ok || n == d.body {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if p := n.Parent; p != nil {
		for i, c := range p.Children {
			if c == n {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
	}
	d.forget(n)
	d.touch()
	return nil
}

func (d *Document) forget(n *Node) {
	delete(d.index, n.ID)
	for _, c := range n.Children {
		d.forget(c)
	}
}

// Replace swaps in the content of other, as a page reload would. Every node
// of the previous content stops being live. other must not be used afterwards.
func (d *Document) Replace(other *Document) {
	other.mu.Lock()
	title, body, index := other.title, other.body, other.index
	other.body, other.index = nil, map[NodeID]*Node{}
	other.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.title, d.body, d.index = title, body, index
	d.touch()
}

func (d *Document) touch() {
	d.generation++
	d.layout = nil
}

// TextNodes returns the visible text-bearing nodes in document order.
func (d *Document) TextNodes() []Text {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return collect(d.body, skipTags)
}

// ReadableNodes is TextNodes without page chrome (navigation, headers and
// footers).
func (d *Document) ReadableNodes() []Text {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return collect(d.body, chromeTags)
}

func collect(root *Node, skip map[string]bool) []Text {
	var out []Text
	walkVisible(root, skip, func(n *Node) {
		if strings.TrimSpace(n.Text) != "" {
			out = append(out, Text{ID: n.ID, Text: n.Text})
		}
	})
	return out
}

// walkVisible calls fn for every text node not inside a skipped or hidden
// element.
func walkVisible(n *Node, skip map[string]bool, fn func(*Node)) {
	if n == nil {
		return
	}
	if n.Type == TextNode {
		fn(n)
		return
	}
	if skip[n.Tag] || hidden(n) {
		return
	}
	for _, c := range n.Children {
		walkVisible(c, skip, fn)
	}
}
