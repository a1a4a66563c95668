package highlight

import (
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/page"
)

type mockViewport struct {
	top, height int
	requests    []int
}

func (v *mockViewport) Visible() (int, int) { return v.top, v.height }
func (v *mockViewport) ScrollTo(top int)    { v.requests = append(v.requests, top) }

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestFollow(t *testing.T) {
	tests := []struct {
		name string
		line int
		want []int
	}{
		{"visible", 15, nil},
		{"below", 60, []int{50}},
		{"above", 2, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := &mockViewport{top: 10, height: 30}
			a := NewAutoScroller(vp, DefaultScrollConfig(), nil)
			a.Follow(page.Rect{Line: tt.line, Width: 3, Height: 1})
			if len(vp.requests) != len(tt.want) {
				t.Fatalf("requests = %v, want %v", vp.requests, tt.want)
			}
			for i := range tt.want {
				if vp.requests[i] != tt.want[i] {
					t.Errorf("request %d = %d, want %d", i, vp.requests[i], tt.want[i])
				}
			}
		})
	}
}

func TestManualScrollSuppresses(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	vp := &mockViewport{top: 0, height: 20}
	a := NewAutoScroller(vp, DefaultScrollConfig(), clock.Now)
	offscreen := page.Rect{Line: 100, Width: 4, Height: 1}

	a.NoteManualScroll()
	clock.Advance(1 * time.Second)
	if a.Follow(offscreen) {
		t.Error("auto-scrolled one second after a manual scroll")
	}
	clock.Advance(1500 * time.Millisecond)
	if a.Follow(offscreen) {
		t.Error("auto-scrolled inside the suppression window")
	}
	clock.Advance(600 * time.Millisecond)
	if !a.Follow(offscreen) {
		t.Error("auto-scroll should resume after the suppression window")
	}

	a.SetEnabled(false)
	if a.Follow(offscreen) {
		t.Error("auto-scrolled while disabled")
	}
}
