package highlight

import (
	"sync"
	"time"

	"github.com/dgnsrekt/readaloud/internal/page"
)

// Viewport is the scrollable view of the page. Implementations must not
// block.
type Viewport interface {
	// Visible returns the first visible line and the number of lines shown.
	Visible() (top, height int)
	// ScrollTo asks for a smooth scroll so that line top is first.
	ScrollTo(top int)
}

// ScrollConfig controls when auto-scrolling may move the view.
type ScrollConfig struct {
	// Quiet is how long after a manual scroll auto-scrolling waits.
	Quiet time.Duration
	// Suppress is how long a manual scroll disables auto-scrolling.
	Suppress time.Duration
}

// DefaultScrollConfig returns the standard delays.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{Quiet: 2 * time.Second, Suppress: 3 * time.Second}
}

// AutoScroller keeps the highlighted word in view unless the user has
// recently scrolled.
type AutoScroller struct {
	mu         sync.Mutex
	vp         Viewport
	config     ScrollConfig
	now        func() time.Time
	lastManual time.Time
	disabled   bool
}

// NewAutoScroller creates a scroller for vp. now may be nil.
func NewAutoScroller(vp Viewport, config ScrollConfig, now func() time.Time) *AutoScroller {
	if now == nil {
		now = time.Now
	}
	return &AutoScroller{vp: vp, config: config, now: now}
}

// NoteManualScroll records a scroll made by the user.
func (a *AutoScroller) NoteManualScroll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastManual = a.now()
}

// SetEnabled turns auto-scrolling on or off.
func (a *AutoScroller) SetEnabled(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disabled = !on
}

// allowed must be called with a.mu held.
func (a *AutoScroller) allowed() bool {
	if a.disabled {
		return false
	}
	if a.lastManual.IsZero() {
		return true
	}
	since := a.now().Sub(a.lastManual)
	return since > a.config.Quiet && since >= a.config.Suppress
}

// Follow scrolls so that r sits about a third of the way down the view,
// when r is off screen and auto-scrolling is allowed. It reports whether a
// scroll was requested.
func (a *AutoScroller) Follow(r page.Rect) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.allowed() {
		return false
	}
	top, height := a.vp.Visible()
	if height <= 0 {
		return false
	}
	if r.Line >= top && r.Line+r.Height <= top+height {
		return false
	}
	a.vp.ScrollTo(max(r.Line-height/3, 0))
	return true
}
