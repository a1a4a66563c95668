package controller

import (
	"time"

	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/stream"
)

// Media is the playable buffer of one session. *audio.Pipeline satisfies
// it.
type Media interface {
	stream.SourceBuffer
	stream.Clock
	Play() error
	Pause()
	Seek(d time.Duration)
	SetRate(rate float64)
	Duration() time.Duration
	Ticks() <-chan time.Duration
}

// MediaFactory creates the buffer for a new session.
type MediaFactory func() Media

// Document is the page being read.
type Document interface {
	TextNodes() []page.Text
	TextFrom(id page.NodeID) string
}

// Sound is a notification sound.
type Sound interface {
	Play()
}

// Presenter shows notices and playback state to the user. Both methods
// are called with the controller locked and must not block or call back
// into the controller.
type Presenter interface {
	Notify(n Notice)
	Update(s Snapshot)
}
