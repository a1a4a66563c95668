// Package highlight keeps the on-screen word highlight in step with audio
// playback.
package highlight

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/segment"
)

// Page resolves word references against the live document.
type Page interface {
	Lookup(id page.NodeID) (string, bool)
	Rect(id page.NodeID, offset, length int) page.Rect
}

// Highlighter draws the highlight. Implementations must not block.
type Highlighter interface {
	Show(r page.Rect)
	Hide()
}

// Synchronizer tracks which segment is being spoken.
type Synchronizer struct {
	mu       sync.Mutex
	page     Page
	hl       Highlighter
	scroller *AutoScroller

	segments []segment.WordSegment
	current  int

	// Staleness is common after a reload and would flood the log.
	diag rate.Sometimes
}

// NewSynchronizer creates a synchronizer drawing through hl. scroller may
// be nil to disable auto-scrolling.
func NewSynchronizer(p Page, hl Highlighter, scroller *AutoScroller) *Synchronizer {
	return &Synchronizer{
		page:     p,
		hl:       hl,
		scroller: scroller,
		current:  -1,
		diag:     rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
}

// Reset starts tracking a new list of segments.
func (s *Synchronizer) Reset(segments []segment.WordSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = segments
	s.current = -1
	s.hl.Hide()
}

// Clear hides the highlight and forgets the segments.
func (s *Synchronizer) Clear() {
	s.Reset(nil)
}

// Current returns the index of the highlighted segment, or -1.
func (s *Synchronizer) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Len returns the number of segments tracked.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Tick moves the highlight to the segment estimated for position. The
// highlight is only redrawn when the index changes.
func (s *Synchronizer) Tick(position, duration time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := EstimateIndex(position, duration, len(s.segments))
	if i < 0 || i == s.current {
		return s.current
	}
	s.current = i
	s.show(i)
	return i
}

// Seek highlights segment i directly, clamped to the valid range.
func (s *Synchronizer) Seek(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 {
		s.current = -1
		return -1
	}
	i = min(max(i, 0), len(s.segments)-1)
	s.current = i
	s.show(i)
	return i
}

// show must be called with s.mu held. Failures are logged, never surfaced.
func (s *Synchronizer) show(i int) {
	seg := s.segments[i]
	text, ok := s.page.Lookup(seg.Ref.Node)
	if !ok {
		s.debug("Word node is no longer on the page", "word", seg.Word, "index", i)
		return
	}
	if seg.Ref.Offset < 0 || seg.Ref.Length <= 0 || seg.Ref.Offset+seg.Ref.Length > len(text) {
		s.debug("Word range is out of bounds", "word", seg.Word, "offset", seg.Ref.Offset, "length", seg.Ref.Length, "text", len(text))
		return
	}
	r := s.page.Rect(seg.Ref.Node, seg.Ref.Offset, seg.Ref.Length)
	if r.Empty() {
		s.debug("Word is not displayed", "word", seg.Word, "index", i)
		return
	}
	s.hl.Show(r)
	if s.scroller != nil {
		s.scroller.Follow(r)
	}
}

func (s *Synchronizer) debug(msg string, keyvals ...interface{}) {
	s.diag.Do(func() { log.Debug(msg, keyvals...) })
}
