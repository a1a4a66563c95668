package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("audio pipeline closed")
	// ErrAborted is the result of an append cancelled by Abort.
	ErrAborted = errors.New("append aborted")
	// ErrBusy is returned when an append is started while another one is
	// still in flight.
	ErrBusy = errors.New("append already in progress")
	// ErrEnded is returned by Append after EndOfStream.
	ErrEnded = errors.New("audio stream already ended")
	// ErrNotPrefix is returned by Remove for ranges that do not start at
	// the beginning of the buffer.
	ErrNotPrefix = errors.New("only leading audio can be removed")
)

// Pipeline decodes MP3 chunks into memory and plays them back. It
// satisfies stream.SourceBuffer and stream.Clock.
//
// Decoding runs on a goroutine fed through a pipe, so an append completes
// once the decoder has consumed the chunk. Playback pulls samples from the
// decoded buffer at the configured rate; when it catches up with the
// decoder it plays silence and the position holds still.
type Pipeline struct {
	out     Output
	outRate int

	// ctl serializes calls into the player. The device pulls samples while
	// holding its own locks, so p.mu is never held while calling it.
	ctl    sync.Mutex
	player Player

	mu        sync.Mutex
	pcm       []byte
	base      int64   // frame index of pcm[0]
	pos       float64 // playback position in source frames
	srcRate   int
	rate      float64
	playing   bool
	closed    bool
	appending bool
	err       error
	pw        *io.PipeWriter
	decoding  bool
	ended     bool
	eos       chan error // answers EndOfStream once decoding ends

	ticks chan time.Duration
}

// NewPipeline creates an empty pipeline playing through out.
func NewPipeline(out Output) *Pipeline {
	return &Pipeline{
		out:     out,
		outRate: out.SampleRate(),
		rate:    1,
		ticks:   make(chan time.Duration, 1),
	}
}

// Append implements stream.SourceBuffer.
func (p *Pipeline) Append(chunk []byte) <-chan error {
	done := make(chan error, 1)

	p.mu.Lock()
	var err error
	switch {
	case p.closed:
		err = ErrClosed
	case p.err != nil:
		err = p.err
	case p.ended:
		err = ErrEnded
	case p.appending:
		err = ErrBusy
	}
	if err != nil {
		p.mu.Unlock()
		done <- err
		return done
	}
	if p.pw == nil {
		pr, pw := io.Pipe()
		p.pw = pw
		p.decoding = true
		go p.decode(pr)
	}
	pw := p.pw
	p.appending = true
	p.mu.Unlock()

	go func() {
		_, err := pw.Write(chunk)
		p.mu.Lock()
		p.appending = false
		if err != nil && p.err != nil {
			err = p.err
		}
		p.mu.Unlock()
		done <- err
	}()
	return done
}

func (p *Pipeline) decode(r *io.PipeReader) {
	err := p.decodeAll(r)
	if err != nil {
		_ = r.CloseWithError(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && !p.closed && p.err == nil && !errors.Is(err, ErrAborted) {
		p.err = fmt.Errorf("decode audio: %w", err)
		log.Debug("Audio decoding failed", "err", err)
	}
	p.decoding = false
	if p.eos != nil {
		p.eos <- p.err
		p.eos = nil
	}
}

// decodeAll decodes r until it ends. A stream without a single valid frame
// is an error.
func (p *Pipeline) decodeAll(r io.Reader) error {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return err //nolint:wrapcheck
	}
	rate := dec.SampleRate()

	buf := make([]byte, 8192)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			p.write(rate, buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			// A cut off last frame is dropped.
			return nil
		default:
			return err //nolint:wrapcheck
		}
	}
}

// EndOfStream implements stream.SourceBuffer. It closes the decoder input;
// the result arrives once the decoder has worked through what is left.
func (p *Pipeline) EndOfStream() <-chan error {
	done := make(chan error, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		done <- ErrClosed
		return done
	case p.err != nil:
		done <- p.err
		return done
	}
	p.ended = true
	if !p.decoding {
		done <- nil
		return done
	}
	p.eos = done
	if p.pw != nil {
		_ = p.pw.Close()
		p.pw = nil
	}
	return done
}

// write adds decoded PCM. Partial frames are completed by the next write.
func (p *Pipeline) write(rate int, pcm []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.srcRate = rate
	p.pcm = append(p.pcm, pcm...)
}

func (p *Pipeline) frames() int64 {
	return int64(len(p.pcm) / frameSize)
}

func (p *Pipeline) frameTime(f float64) time.Duration {
	if p.srcRate == 0 {
		return 0
	}
	return time.Duration(f / float64(p.srcRate) * float64(time.Second))
}

func (p *Pipeline) frameAt(d time.Duration) float64 {
	return d.Seconds() * float64(p.srcRate)
}

// Buffered implements stream.SourceBuffer.
func (p *Pipeline) Buffered() (start, end time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameTime(float64(p.base)), p.frameTime(float64(p.base + p.frames()))
}

// Duration returns the end of the decoded audio.
func (p *Pipeline) Duration() time.Duration {
	_, end := p.Buffered()
	return end
}

// Remove implements stream.SourceBuffer. Only audio from the start of the
// buffer can be removed, and never audio at or after the playback position.
func (p *Pipeline) Remove(start, end time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.srcRate == 0 {
		return nil
	}
	if start > p.frameTime(float64(p.base)) {
		return ErrNotPrefix
	}
	cut := min(int64(p.frameAt(end)), int64(p.pos), p.base+p.frames())
	if cut <= p.base {
		return nil
	}
	p.pcm = p.pcm[int(cut-p.base)*frameSize:]
	p.base = cut
	return nil
}

// Abort implements stream.SourceBuffer.
func (p *Pipeline) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw == nil || !p.appending {
		return
	}
	_ = p.pw.CloseWithError(ErrAborted)
	p.pw = nil
	if p.err == nil {
		p.err = ErrAborted
	}
}

// Close stops playback and releases the decoded audio. It implements
// stream.SourceBuffer.
func (p *Pipeline) Close() error {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	if p.pw != nil {
		_ = p.pw.Close()
		p.pw = nil
	}
	p.pcm = nil
	p.mu.Unlock()

	release(p.player)
	p.player = nil
	return nil
}

// Play starts or resumes output from the current position.
func (p *Pipeline) Play() error {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.playing = true
	p.mu.Unlock()

	if p.player == nil {
		p.player = p.out.NewPlayer(deviceReader{p})
	}
	p.player.Play()
	return nil
}

// Pause holds the position until Play is called again.
func (p *Pipeline) Pause() {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()

	if p.player != nil {
		p.player.Pause()
	}
}

// Playing reports whether output is running.
func (p *Pipeline) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position implements stream.Clock.
func (p *Pipeline) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameTime(p.pos)
}

// Seek moves the position, clamped to the buffered range.
func (p *Pipeline) Seek(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.frameAt(d)
	f = max(f, float64(p.base))
	f = min(f, float64(p.base+p.frames()))
	p.pos = f
}

// SetRate sets the playback rate. Non-positive rates mean normal speed.
func (p *Pipeline) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
}

// Ticks delivers the playback position as the device consumes audio. Only
// the latest position is kept.
func (p *Pipeline) Ticks() <-chan time.Duration {
	return p.ticks
}

func (p *Pipeline) tick(pos time.Duration) {
	select {
	case p.ticks <- pos:
	default:
		select {
		case <-p.ticks:
		default:
		}
		select {
		case p.ticks <- pos:
		default:
		}
	}
}

type deviceReader struct{ p *Pipeline }

func (r deviceReader) Read(buf []byte) (int, error) {
	return r.p.fill(buf), nil
}

// fill renders output frames into buf, resampling from the source rate
// with linear interpolation.
func (p *Pipeline) fill(buf []byte) int {
	n := len(buf) - len(buf)%frameSize

	p.mu.Lock()
	if !p.playing || p.closed || p.srcRate == 0 {
		p.mu.Unlock()
		clear(buf[:n])
		return n
	}

	step := float64(p.srcRate) / float64(p.outRate) * p.rate
	last := p.base + p.frames() - 1
	for off := 0; off < n; off += frameSize {
		i := int64(p.pos)
		if i >= last {
			clear(buf[off:n])
			break
		}
		frac := p.pos - float64(i)
		at := int(i-p.base) * frameSize
		for ch := 0; ch < Channels; ch++ {
			a := float64(int16(binary.LittleEndian.Uint16(p.pcm[at+ch*bytesPerSample:])))
			b := float64(int16(binary.LittleEndian.Uint16(p.pcm[at+frameSize+ch*bytesPerSample:])))
			v := int16(math.Round(a + (b-a)*frac))
			binary.LittleEndian.PutUint16(buf[off+ch*bytesPerSample:], uint16(v))
		}
		p.pos += step
	}
	pos := p.frameTime(p.pos)
	p.mu.Unlock()

	p.tick(pos)
	return n
}
