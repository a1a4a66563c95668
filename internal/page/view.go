package page

import "strings"

// fallbackLength is the shortest text TextFrom returns before falling back
// to the whole page.
const fallbackLength = 50

// SetWidth sets the wrap width used by the layout methods.
func (d *Document) SetWidth(width int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if width != d.width {
		d.width = width
		d.layout = nil
	}
}

// currentLayout must be called with d.mu held for writing.
func (d *Document) currentLayout() *Layout {
	if d.layout == nil {
		d.layout = buildLayout(d.body, d.width)
	}
	return d.layout
}

// Layout returns the layout for the current width and content.
func (d *Document) Layout() *Layout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentLayout()
}

// Lines returns the page wrapped to the current width.
func (d *Document) Lines() []string {
	return d.Layout().Lines()
}

// Rect locates a range of a live node's text on screen. The rect is empty
// when the node is gone or the range is not displayed.
func (d *Document) Rect(id NodeID, offset, length int) Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[id]; !ok {
		return Rect{}
	}
	return d.currentLayout().Rect(id, offset, length)
}

// NodeAt returns the text node displayed at a cell.
func (d *Document) NodeAt(line, col int) (NodeID, bool) {
	return d.Layout().NodeAt(line, col)
}

// TextFrom returns the readable text starting at node id and running to the
// end of the page. Short results fall back to every non-empty line of the
// page.
func (d *Document) TextFrom(id NodeID) string {
	nodes := d.ReadableNodes()
	start := -1
	for i, n := range nodes {
		if n.ID == id {
			start = i
			break
		}
	}

	var parts []string
	if start >= 0 {
		for _, n := range nodes[start:] {
			if t := strings.TrimSpace(n.Text); t != "" {
				parts = append(parts, t)
			}
		}
	}
	text := strings.Join(parts, " ")
	if len(text) >= fallbackLength {
		return text
	}

	var lines []string
	for _, l := range d.Lines() {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
