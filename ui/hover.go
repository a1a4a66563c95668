package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/readaloud/internal/page"
)

const controlLabel = " ▶ "

var controlStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFDF5")).
	Background(lipgloss.Color("#6B50FF")).
	Bold(true)

// cell is a position on the laid out page.
type cell struct {
	line int
	col  int
}

func (c cell) before(o cell) bool {
	return c.line < o.line || (c.line == o.line && c.col < o.col)
}

type (
	hoverDwellMsg struct{ seq int }
	hoverHideMsg  struct{ seq int }
)

type hoverAction int

const (
	hoverNone hoverAction = iota
	hoverStartDwell
	hoverStartHide
)

// hoverState tracks the floating read control. Timers are owned by the
// caller; every new timer gets a sequence number and only the latest one
// counts.
type hoverState struct {
	seq int

	armed       bool
	pending     cell
	pendingNode page.NodeID

	visible bool
	at      cell
	node    page.NodeID
}

// move records the pointer at c. onText is set when c is over a text node.
func (h *hoverState) move(c cell, node page.NodeID, onText bool) (hoverAction, int) {
	if h.onControl(c) {
		h.seq++
		h.armed = false
		return hoverNone, h.seq
	}
	if onText {
		if h.armed && node == h.pendingNode {
			return hoverNone, h.seq
		}
		if h.visible && !h.armed && node == h.node {
			h.seq++
			return hoverNone, h.seq
		}
		h.seq++
		h.armed = true
		h.pending = c
		h.pendingNode = node
		return hoverStartDwell, h.seq
	}

	h.seq++
	h.armed = false
	if h.visible {
		return hoverStartHide, h.seq
	}
	return hoverNone, h.seq
}

// dwell shows the control one line above where the pointer rested. It
// reports whether anything changed.
func (h *hoverState) dwell(seq int) bool {
	if seq != h.seq || !h.armed {
		return false
	}
	h.armed = false
	h.visible = true
	h.at = cell{line: max(h.pending.line-1, 0), col: h.pending.col}
	h.node = h.pendingNode
	return true
}

// hide removes the control if no later pointer event superseded the timer.
func (h *hoverState) hide(seq int) bool {
	if seq != h.seq || !h.visible {
		return false
	}
	h.visible = false
	return true
}

func (h *hoverState) dismiss() {
	h.seq++
	h.armed = false
	h.visible = false
}

func (h *hoverState) onControl(c cell) bool {
	return h.visible && c.line == h.at.line && c.col >= h.at.col && c.col < h.at.col+lipgloss.Width(controlLabel)
}

// overlayControl draws the control over line at col. The part of the line
// underneath is hidden.
func overlayControl(line string, col int) string {
	w := lipgloss.Width(controlLabel)
	pre, _, post := splitCells(line, col, col+w)
	if pad := col - lipgloss.Width(pre); pad > 0 {
		pre += strings.Repeat(" ", pad)
	}
	return pre + controlStyle.Render(controlLabel) + post
}
