// Package stream moves synthesized audio from the network into a playable
// buffer. Appends are serialized, played audio is evicted behind the
// playback position and the end of the stream is detected once the buffer
// has drained.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrEmptyStream is returned when the response body ends before any
	// audio arrives.
	ErrEmptyStream = errors.New("stream ended without audio")
	// ErrStopped is returned by operations on a stopped manager.
	ErrStopped = errors.New("stream stopped")
)

// SourceBuffer is a buffer of decoded audio that accepts encoded chunks.
type SourceBuffer interface {
	// Append starts appending a chunk. The returned channel receives exactly
	// one value when the buffer is ready for the next append. Only one append
	// may be in flight at a time.
	Append(chunk []byte) <-chan error
	// Remove drops buffered audio between start and end.
	Remove(start, end time.Duration) error
	// Buffered returns the time range currently held.
	Buffered() (start, end time.Duration)
	// EndOfStream tells the buffer that no more chunks follow. The returned
	// channel receives exactly one value once everything appended has been
	// processed: nil, or the error that made the audio unusable.
	EndOfStream() <-chan error
	// Abort cancels an in-flight append.
	Abort()
	// Close releases the buffer.
	Close() error
}

// Clock reports the playback position.
type Clock interface {
	Position() time.Duration
}

// Config controls buffering.
type Config struct {
	// MaxBuffered is how much audio may be kept behind the playback position,
	// and how much unplayed audio may be buffered before appends are held.
	MaxBuffered time.Duration
	// EndThreshold is the distance from the buffered end at which a
	// completed stream counts as finished.
	EndThreshold time.Duration
	// ChunkSize is the read size used for the network body.
	ChunkSize int
}

// DefaultConfig returns the standard buffering limits.
func DefaultConfig() Config {
	return Config{
		MaxBuffered:  90 * time.Second,
		EndThreshold: 500 * time.Millisecond,
		ChunkSize:    16 * 1024,
	}
}

// Stats describes the state of the buffer.
type Stats struct {
	Queued   int           // chunks waiting to be appended
	Appended int           // chunks appended successfully
	Bytes    int64         // encoded bytes handed to the buffer
	Ahead    time.Duration // buffered audio not played yet
	Behind   time.Duration // buffered audio already played
	Complete bool
}

// Manager feeds chunks into a SourceBuffer one at a time. All methods are
// safe for concurrent use, but chunks are expected to arrive from a single
// goroutine (see Pump).
type Manager struct {
	mu      sync.Mutex
	config  Config
	buf     SourceBuffer
	clock   Clock
	queue   [][]byte
	pending <-chan error
	ended   <-chan error

	complete bool
	endSent  bool
	finished bool
	stopped  bool
	appended int
	bytes    int64
}

// NewManager creates a manager for buf using clock for eviction decisions.
func NewManager(buf SourceBuffer, clock Clock, config Config) *Manager {
	def := DefaultConfig()
	if config.MaxBuffered <= 0 {
		config.MaxBuffered = def.MaxBuffered
	}
	if config.EndThreshold <= 0 {
		config.EndThreshold = def.EndThreshold
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = def.ChunkSize
	}
	return &Manager{config: config, buf: buf, clock: clock}
}

// Enqueue adds a chunk behind any chunks already waiting and starts an
// append if the buffer is free. Chunks enqueued after Stop are dropped.
func (m *Manager) Enqueue(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.queue = append(m.queue, chunk)
	m.drain()
}

// Pending returns the completion channel of the in-flight append, or nil.
func (m *Manager) Pending() <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// AppendDone records the result of the in-flight append. On success the
// buffer is trimmed and the next queued chunk, if any, is appended.
func (m *Manager) AppendDone(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	if m.stopped {
		return ErrStopped
	}
	if err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	m.appended++
	m.evict()
	m.drain()
	m.endOfStream()
	return nil
}

// Kick retries appending held chunks, after the playback position moved.
func (m *Manager) Kick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drain()
	m.endOfStream()
}

// drain starts the next append. Must be called with m.mu held.
func (m *Manager) drain() {
	if m.stopped || m.pending != nil || len(m.queue) == 0 {
		return
	}
	if _, end := m.buf.Buffered(); end-m.clock.Position() > m.config.MaxBuffered {
		return
	}
	chunk := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.bytes += int64(len(chunk))
	m.pending = m.buf.Append(chunk)
}

// evict removes audio more than MaxBuffered behind the playback position.
// Must be called with m.mu held.
func (m *Manager) evict() {
	start, _ := m.buf.Buffered()
	cutoff := m.clock.Position() - m.config.MaxBuffered
	if cutoff <= start {
		return
	}
	if err := m.buf.Remove(start, cutoff); err != nil {
		log.Debug("Could not evict played audio", "start", start, "end", cutoff, "err", err)
	}
}

// endOfStream signals the end of the stream to the buffer once the network
// stream has ended and every chunk was appended. Must be called with m.mu
// held.
func (m *Manager) endOfStream() {
	if !m.complete || m.endSent || m.stopped || m.pending != nil || len(m.queue) > 0 {
		return
	}
	m.endSent = true
	m.ended = m.buf.EndOfStream()
}

// MarkComplete records that the network stream has ended.
func (m *Manager) MarkComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complete = true
	m.endOfStream()
}

// Ended returns the channel reporting that the buffer processed the end of
// the stream, or nil while that is not pending.
func (m *Manager) Ended() <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

// EndDone records the buffer's answer to the end of the stream. A stream
// that produced no playable audio is an error.
func (m *Manager) EndDone(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = nil
	if m.stopped {
		return ErrStopped
	}
	if err != nil {
		return fmt.Errorf("finish stream: %w", err)
	}
	if _, end := m.buf.Buffered(); end <= 0 {
		return ErrEmptyStream
	}
	m.finished = true
	return nil
}

// Complete reports whether the network stream has ended.
func (m *Manager) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete
}

// Drained reports whether the stream has ended, the buffer has processed
// all of it and playback reached the end of the buffer.
func (m *Manager) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finished || m.stopped {
		return false
	}
	_, end := m.buf.Buffered()
	return end-m.clock.Position() <= m.config.EndThreshold
}

// Stop aborts any in-flight append, drops queued chunks and closes the
// buffer. It is safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.queue = nil
	if m.pending != nil {
		m.buf.Abort()
		m.pending = nil
	}
	if err := m.buf.Close(); err != nil {
		log.Debug("Could not close audio buffer", "err", err)
	}
}

// Stopped reports whether Stop was called.
func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Stats returns a snapshot of the buffer state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Queued:   len(m.queue),
		Appended: m.appended,
		Bytes:    m.bytes,
		Complete: m.complete,
	}
	if m.stopped {
		return s
	}
	start, end := m.buf.Buffered()
	pos := m.clock.Position()
	s.Ahead = max(end-pos, 0)
	s.Behind = max(pos-start, 0)
	return s
}
