package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/readaloud/internal/controller"
	"github.com/dgnsrekt/readaloud/internal/page"
)

// bridge carries highlight, scroll and playback updates from the
// controller's goroutines into the Bubble Tea event loop. Every method the
// controller calls only records state and signals; the model collects it
// on its own goroutine.
type bridge struct {
	mu sync.Mutex

	rect      page.Rect
	rectDirty bool

	scrollTo    int
	scrollDirty bool

	// Last reported viewport, written by the model
	top    int
	height int

	notices  []controller.Notice
	snapshot controller.Snapshot
	snapSet  bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// bridgeMsg tells the model that the bridge has updates.
type bridgeMsg struct{}

// bridgeUpdate is everything recorded since the last collect.
type bridgeUpdate struct {
	rect      page.Rect
	rectDirty bool

	scrollTo    int
	scrollDirty bool

	notices  []controller.Notice
	snapshot controller.Snapshot
	snapSet  bool
}

func newBridge() *bridge {
	return &bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (b *bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Show implements highlight.Highlighter.
func (b *bridge) Show(r page.Rect) {
	b.mu.Lock()
	b.rect, b.rectDirty = r, true
	b.mu.Unlock()
	b.signal()
}

// Hide implements highlight.Highlighter.
func (b *bridge) Hide() {
	b.Show(page.Rect{})
}

// Visible implements highlight.Viewport.
func (b *bridge) Visible() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.top, b.height
}

// ScrollTo implements highlight.Viewport.
func (b *bridge) ScrollTo(top int) {
	b.mu.Lock()
	b.scrollTo, b.scrollDirty = top, true
	// Report the target right away so a second Follow before the model
	// catches up does not scroll again.
	b.top = top
	b.mu.Unlock()
	b.signal()
}

// Notify implements controller.Presenter.
func (b *bridge) Notify(n controller.Notice) {
	b.mu.Lock()
	b.notices = append(b.notices, n)
	b.mu.Unlock()
	b.signal()
}

// Update implements controller.Presenter.
func (b *bridge) Update(s controller.Snapshot) {
	b.mu.Lock()
	b.snapshot, b.snapSet = s, true
	b.mu.Unlock()
	b.signal()
}

func (b *bridge) setVisible(top, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.top, b.height = top, height
}

// collect returns and clears the pending updates.
func (b *bridge) collect() bridgeUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := bridgeUpdate{
		rect:        b.rect,
		rectDirty:   b.rectDirty,
		scrollTo:    b.scrollTo,
		scrollDirty: b.scrollDirty,
		notices:     b.notices,
		snapshot:    b.snapshot,
		snapSet:     b.snapSet,
	}
	b.rectDirty, b.scrollDirty, b.snapSet = false, false, false
	b.notices = nil
	return u
}

// wait returns a command that blocks until the bridge has updates.
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.wake:
			return bridgeMsg{}
		case <-b.done:
			return nil
		}
	}
}

func (b *bridge) close() {
	b.once.Do(func() { close(b.done) })
}
