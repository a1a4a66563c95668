// Package controller owns the reading session: it turns a trigger into a
// synthesis request, streams the audio into a playable buffer, keeps the
// word highlight in step and reports failures to the presentation layer.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/readaloud/internal/highlight"
	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"github.com/dgnsrekt/readaloud/internal/segment"
	"github.com/dgnsrekt/readaloud/internal/settings"
	"github.com/dgnsrekt/readaloud/internal/stream"
	"github.com/dgnsrekt/readaloud/internal/synth"
)

var (
	// ErrEmptyText is returned when there is nothing to read.
	ErrEmptyText = errors.New("no text to read")
	// ErrNotEnoughText is returned by ReadFrom when the page has too little
	// text after the chosen node.
	ErrNotEnoughText = errors.New("not enough text to read")
)

// Config tunes the controller.
type Config struct {
	Stream stream.Config
	// MinReadFrom is the shortest text ReadFrom will read.
	MinReadFrom int
	// MaxReadFrom is the longest text ReadFrom sends for synthesis; longer
	// text is cut and marked with an ellipsis.
	MaxReadFrom int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		Stream:      stream.DefaultConfig(),
		MinReadFrom: 10,
		MaxReadFrom: 5000,
	}
}

// Options are the collaborators of a Controller. Chime and Presenter may be
// nil.
type Options struct {
	Document     Document
	Streamer     synth.Streamer
	Settings     settings.Store
	Media        MediaFactory
	Synchronizer *highlight.Synchronizer
	Chime        Sound
	Presenter    Presenter
	Config       Config
}

// Snapshot describes the controller at one point in time.
type Snapshot struct {
	Mode        playback.Mode
	SessionID   uuid.UUID
	Words       int
	Segments    int
	CurrentWord int // -1 when nothing is highlighted
	Position    time.Duration
	Duration    time.Duration
	PausedAt    time.Duration
	Complete    bool
	Buffer      stream.Stats
}

// Controller runs at most one reading session at a time. All methods are
// safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	machine   *playback.Machine
	doc       Document
	streamer  synth.Streamer
	settings  settings.Store
	newMedia  MediaFactory
	sync      *highlight.Synchronizer
	chime     Sound
	presenter Presenter
	config    Config

	session *session
}

// session is one trigger-to-idle lifecycle.
type session struct {
	id       uuid.UUID
	text     string
	words    []string
	segments []segment.WordSegment
	rate     float64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	media    Media
	manager  *stream.Manager
	pausedAt time.Duration
	complete bool
	stopped  bool
}

// New creates an idle controller.
func New(opts Options) *Controller {
	def := DefaultConfig()
	if opts.Config.MinReadFrom <= 0 {
		opts.Config.MinReadFrom = def.MinReadFrom
	}
	if opts.Config.MaxReadFrom <= 0 {
		opts.Config.MaxReadFrom = def.MaxReadFrom
	}

	c := &Controller{
		machine:   playback.NewMachine(),
		doc:       opts.Document,
		streamer:  opts.Streamer,
		settings:  opts.Settings,
		newMedia:  opts.Media,
		sync:      opts.Synchronizer,
		chime:     opts.Chime,
		presenter: opts.Presenter,
		config:    opts.Config,
	}
	c.setupStateMachine()
	return c
}

// setupStateMachine attaches the side effects of each mode. Hooks run with
// c.mu held.
func (c *Controller) setupStateMachine() {
	c.machine.OnEnter(playback.ModeSpeaking, func(from playback.Mode) {
		s := c.session
		if s == nil || s.media == nil {
			return
		}
		s.media.Seek(s.pausedAt)
		if err := s.media.Play(); err != nil {
			log.Warn("Could not start audio output", "err", err)
		}
		if from == playback.ModePaused {
			c.sync.Seek(highlight.ResumeIndex(s.pausedAt, c.durationLocked(s), c.sync.Len()))
			return
		}
		c.sync.Seek(0)
	})

	c.machine.OnEnter(playback.ModePaused, func(playback.Mode) {
		s := c.session
		if s == nil || s.media == nil {
			return
		}
		s.media.Pause()
		s.pausedAt = s.media.Position()
	})

	c.machine.OnEnter(playback.ModeIdle, func(from playback.Mode) {
		c.sync.Clear()
		c.teardownLocked()
		log.Debug("Reading stopped", "from", from)
	})
}

// Activate is the single read/stop control: it resumes a paused session,
// stops a running one and otherwise starts reading text.
func (c *Controller) Activate(text string) error {
	c.mu.Lock()
	switch c.machine.Current() {
	case playback.ModePaused:
		c.resumeLocked()
		c.mu.Unlock()
		return nil
	case playback.ModeLoading, playback.ModeSpeaking:
		c.stopLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.Play(text)
}

// Play starts reading text, stopping any session in progress first.
func (c *Controller) Play(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	err := c.startLocked(text)
	c.publishLocked()
	return err
}

// ReadFrom reads the page from node id to the end, the way the hover
// control does. Like Activate, it resumes or stops an existing session
// instead of starting a new one.
func (c *Controller) ReadFrom(id page.NodeID) error {
	c.mu.Lock()
	switch c.machine.Current() {
	case playback.ModePaused:
		c.resumeLocked()
		c.mu.Unlock()
		return nil
	case playback.ModeLoading, playback.ModeSpeaking:
		c.stopLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	text := strings.TrimSpace(c.doc.TextFrom(id))
	if utf8.RuneCountInString(text) < c.config.MinReadFrom {
		c.mu.Lock()
		c.notifyLocked(Notice{Kind: NoticeInfo, Message: MsgNotEnoughText, Err: ErrNotEnoughText})
		c.mu.Unlock()
		return ErrNotEnoughText
	}
	return c.Play(truncate(text, c.config.MaxReadFrom))
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}

// Pause suspends speaking. It reports whether anything was paused.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.machine.Transition(playback.ModePaused) {
		return false
	}
	c.publishLocked()
	return true
}

// Resume continues a paused session. It reports whether anything resumed.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeLocked()
}

func (c *Controller) resumeLocked() bool {
	if c.machine.Current() != playback.ModePaused {
		return false
	}
	c.machine.Transition(playback.ModeSpeaking)
	c.publishLocked()
	return true
}

// TogglePause pauses a speaking session or resumes a paused one.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.machine.Current() {
	case playback.ModeSpeaking:
		c.machine.Transition(playback.ModePaused)
		c.publishLocked()
		return true
	case playback.ModePaused:
		return c.resumeLocked()
	}
	return false
}

// Stop ends the session. Stopping an idle controller does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.publishLocked()
}

// Mode returns the playback mode.
func (c *Controller) Mode() playback.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the current session's worker has exited or ctx is
// done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) stopLocked() {
	if c.machine.Current() != playback.ModeIdle {
		c.machine.Transition(playback.ModeIdle)
	}
	c.teardownLocked()
}

func (c *Controller) teardownLocked() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	s.stopped = true
	s.cancel()
	switch {
	case s.manager != nil:
		s.manager.Stop()
	case s.media != nil:
		_ = s.media.Close()
	}
}

func (c *Controller) startLocked(text string) error {
	c.machine.Transition(playback.ModeLoading)

	st := settings.Load(c.settings)
	if !st.HasAPIKey() {
		c.missingCredentialLocked()
		return synth.ErrMissingAPIKey
	}

	segments := segment.Build(text, c.doc.TextNodes())
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.New(),
		text:     text,
		words:    segment.Words(text),
		segments: segments,
		rate:     st.Speed,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.session = s
	c.sync.Reset(segments)

	log.Debug("Reading started", "session", s.id, "words", len(s.words), "segments", len(segments), "voice", st.VoiceID)
	go c.run(s, synth.Request{
		APIKey:  st.APIKey,
		VoiceID: st.VoiceID,
		ModelID: st.Model(),
		Text:    text,
	})
	return nil
}

func (c *Controller) missingCredentialLocked() {
	if c.chime != nil {
		c.chime.Play()
	}
	c.notifyLocked(noticeFor(synth.ErrMissingAPIKey))
	if err := c.settings.Clear(); err != nil {
		log.Warn("Could not clear settings", "err", err)
	}
	c.machine.Transition(playback.ModeIdle)
}

// run performs the request and streams the response for session s.
func (c *Controller) run(s *session, req synth.Request) {
	defer close(s.done)

	body, err := c.streamer.Stream(s.ctx, req)
	if err != nil {
		c.fail(s, err)
		return
	}

	media := c.newMedia()
	media.SetRate(s.rate)
	manager := stream.NewManager(media, media, c.config.Stream)

	c.mu.Lock()
	if !c.currentLocked(s) {
		c.mu.Unlock()
		_ = body.Close()
		_ = media.Close()
		return
	}
	s.media = media
	s.manager = manager
	c.mu.Unlock()

	err = manager.Pump(s.ctx, body, media.Ticks(), stream.Events{
		FirstAudio: func() { c.firstAudio(s) },
		Tick:       func(pos time.Duration) { c.tick(s, pos) },
		Complete:   func() { c.complete(s) },
		Drained:    func() { c.drained(s) },
	})
	if err != nil {
		c.fail(s, err)
	}
}

// currentLocked reports whether s is still the live session. Callbacks
// from replaced sessions are dropped.
func (c *Controller) currentLocked(s *session) bool {
	return c.session == s && !s.stopped
}

func (c *Controller) fail(s *session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(s) {
		log.Debug("Ignoring result of a finished session", "session", s.id, "err", err)
		return
	}

	log.Error("Reading failed", "session", s.id, "err", err)
	n := noticeFor(err)
	c.notifyLocked(n)
	if n.Kind == NoticeUnauthorized {
		if err := c.settings.Delete(settings.KeyAPIKey); err != nil {
			log.Warn("Could not forget the API key", "err", err)
		}
	}
	c.machine.Transition(playback.ModeIdle)
	c.publishLocked()
}

func (c *Controller) firstAudio(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(s) {
		return
	}
	c.machine.Transition(playback.ModeSpeaking)
	c.publishLocked()
}

func (c *Controller) tick(s *session, pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(s) || c.machine.Current() != playback.ModeSpeaking {
		return
	}
	c.sync.Tick(pos, c.durationLocked(s))
	c.publishLocked()
}

func (c *Controller) complete(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(s) {
		return
	}
	s.complete = true
	c.publishLocked()
}

func (c *Controller) drained(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(s) {
		return
	}
	c.machine.Transition(playback.ModeIdle)
	c.publishLocked()
}

// durationLocked is the total duration used to place the highlight. The
// decoded length is exact once the stream is complete; before that the
// word count gives an estimate. Positions are in media time, so the
// estimate ignores the playback rate.
func (c *Controller) durationLocked(s *session) time.Duration {
	var buffered time.Duration
	if s.media != nil {
		buffered = s.media.Duration()
	}
	if s.complete && buffered > 0 {
		return buffered
	}
	return max(highlight.EstimateDuration(len(s.words), 1), buffered)
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Mode:        c.machine.Current(),
		CurrentWord: c.sync.Current(),
	}
	s := c.session
	if s == nil {
		return snap
	}
	snap.SessionID = s.id
	snap.Words = len(s.words)
	snap.Segments = len(s.segments)
	snap.PausedAt = s.pausedAt
	snap.Complete = s.complete
	snap.Duration = c.durationLocked(s)
	if s.media != nil {
		snap.Position = s.media.Position()
		snap.Buffer = s.manager.Stats()
	}
	return snap
}

func (c *Controller) notifyLocked(n Notice) {
	if c.presenter == nil {
		log.Info("Notice", "kind", n.Kind, "message", n.Message)
		return
	}
	c.presenter.Notify(n)
}

func (c *Controller) publishLocked() {
	if c.presenter != nil {
		c.presenter.Update(c.snapshotLocked())
	}
}
