package highlight

import (
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/segment"
)

// mockPage resolves every node to a fixed text laid out on its own line.
type mockPage struct {
	texts map[page.NodeID]string
}

func (p *mockPage) Lookup(id page.NodeID) (string, bool) {
	t, ok := p.texts[id]
	return t, ok
}

func (p *mockPage) Rect(id page.NodeID, offset, length int) page.Rect {
	if _, ok := p.texts[id]; !ok {
		return page.Rect{}
	}
	return page.Rect{Line: int(id), Col: offset, Width: length, Height: 1}
}

type mockHighlighter struct {
	shown  []page.Rect
	hidden int
}

func (h *mockHighlighter) Show(r page.Rect) { h.shown = append(h.shown, r) }
func (h *mockHighlighter) Hide()            { h.hidden++ }

func segments(n int) []segment.WordSegment {
	segs := make([]segment.WordSegment, n)
	for i := range segs {
		segs[i] = segment.WordSegment{
			Word:      "word",
			Ref:       segment.Ref{Node: page.NodeID(i + 1), Offset: 0, Length: 4},
			WordIndex: i,
		}
	}
	return segs
}

func pageFor(n int) *mockPage {
	p := &mockPage{texts: map[page.NodeID]string{}}
	for i := 1; i <= n; i++ {
		p.texts[page.NodeID(i)] = "word"
	}
	return p
}

func TestEstimateIndex(t *testing.T) {
	tests := []struct {
		name     string
		position time.Duration
		duration time.Duration
		count    int
		want     int
	}{
		{"start", 0, 10 * time.Second, 10, 0},
		{"middle", 5 * time.Second, 10 * time.Second, 10, 5},
		{"just before next", 5999 * time.Millisecond, 10 * time.Second, 10, 5},
		{"end", 10 * time.Second, 10 * time.Second, 10, 9},
		{"past end", 15 * time.Second, 10 * time.Second, 10, 9},
		{"negative", -time.Second, 10 * time.Second, 10, 0},
		{"no segments", time.Second, 10 * time.Second, 0, -1},
		{"unknown duration", time.Second, 0, 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateIndex(tt.position, tt.duration, tt.count); got != tt.want {
				t.Errorf("EstimateIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateIndexMonotonic(t *testing.T) {
	duration := 37 * time.Second
	prev := -1
	for pos := time.Duration(0); pos <= duration; pos += 100 * time.Millisecond {
		i := EstimateIndex(pos, duration, 123)
		if i < prev {
			t.Fatalf("index went backwards at %v: %d after %d", pos, i, prev)
		}
		prev = i
	}
}

func TestEstimateDuration(t *testing.T) {
	if got := EstimateDuration(150, 1); got != time.Minute {
		t.Errorf("EstimateDuration(150, 1) = %v, want 1m", got)
	}
	if got := EstimateDuration(150, 2); got != 30*time.Second {
		t.Errorf("EstimateDuration(150, 2) = %v, want 30s", got)
	}
	if got := EstimateDuration(150, 0); got != time.Minute {
		t.Errorf("EstimateDuration(150, 0) = %v, want 1m", got)
	}
	if got := EstimateDuration(0, 1); got != 0 {
		t.Errorf("EstimateDuration(0, 1) = %v, want 0", got)
	}
}

func TestResumeIndex(t *testing.T) {
	tests := []struct {
		name     string
		pausedAt time.Duration
		total    time.Duration
		words    int
		want     int
	}{
		{"midway", 30 * time.Second, time.Minute, 100, 50},
		{"at start", 0, time.Minute, 100, 0},
		{"without duration", time.Second, 0, 100, 0},
		{"at the end", time.Minute, time.Minute, 100, 99},
		{"past the end", 2 * time.Minute, time.Minute, 100, 99},
		{"no words", 30 * time.Second, time.Minute, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResumeIndex(tt.pausedAt, tt.total, tt.words); got != tt.want {
				t.Errorf("ResumeIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSynchronizerTick(t *testing.T) {
	hl := &mockHighlighter{}
	s := NewSynchronizer(pageFor(10), hl, nil)
	s.Reset(segments(10))

	if s.Current() != -1 {
		t.Fatalf("Current() after Reset = %d, want -1", s.Current())
	}

	s.Tick(0, 10*time.Second)
	s.Tick(500*time.Millisecond, 10*time.Second)
	if len(hl.shown) != 1 {
		t.Errorf("redrawn %d times for the same index, want 1", len(hl.shown))
	}

	if got := s.Tick(5*time.Second, 10*time.Second); got != 5 {
		t.Errorf("Tick() = %d, want 5", got)
	}
	if last := hl.shown[len(hl.shown)-1]; last.Line != 6 {
		t.Errorf("highlighted line %d, want 6", last.Line)
	}

	s.Clear()
	if s.Current() != -1 || s.Len() != 0 {
		t.Errorf("after Clear current=%d len=%d", s.Current(), s.Len())
	}
	if hl.hidden < 2 {
		t.Errorf("Hide() called %d times, want at least 2", hl.hidden)
	}
}

func TestSynchronizerSkipsStaleSegments(t *testing.T) {
	p := pageFor(3)
	hl := &mockHighlighter{}
	s := NewSynchronizer(p, hl, nil)

	segs := segments(3)
	segs[1].Ref.Length = 40 // past the end of the node text
	s.Reset(segs)
	delete(p.texts, 3) // node detached

	for _, i := range []int{0, 1, 2} {
		if got := s.Seek(i); got != i {
			t.Errorf("Seek(%d) = %d", i, got)
		}
	}
	if len(hl.shown) != 1 {
		t.Errorf("shown %d highlights, want only the valid one", len(hl.shown))
	}
	if s.Current() != 2 {
		t.Errorf("Current() = %d, want 2 even when the highlight was skipped", s.Current())
	}
}

func TestSeekClamps(t *testing.T) {
	s := NewSynchronizer(pageFor(4), &mockHighlighter{}, nil)
	if got := s.Seek(3); got != -1 {
		t.Errorf("Seek() without segments = %d, want -1", got)
	}
	s.Reset(segments(4))
	if got := s.Seek(100); got != 3 {
		t.Errorf("Seek(100) = %d, want 3", got)
	}
	if got := s.Seek(-5); got != 0 {
		t.Errorf("Seek(-5) = %d, want 0", got)
	}
}
