package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Chime is a short two-tone notification sound.
type Chime struct {
	out Output
	pcm []byte

	mu      sync.Mutex
	playing Player
}

var chimeTones = []struct {
	freq float64
	dur  time.Duration
}{
	{880, 120 * time.Millisecond},
	{1320, 180 * time.Millisecond},
}

// NewChime renders the chime for out's sample rate.
func NewChime(out Output) *Chime {
	return &Chime{out: out, pcm: renderTones(out.SampleRate())}
}

// Duration returns how long the chime lasts.
func (c *Chime) Duration() time.Duration {
	var d time.Duration
	for _, t := range chimeTones {
		d += t.dur
	}
	return d
}

// Play starts the chime without waiting for it to finish. A chime that is
// still sounding is cut off.
func (c *Chime) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	release(c.playing)
	p := c.out.NewPlayer(bytes.NewReader(c.pcm))
	p.Play()
	c.playing = p
}

func renderTones(rate int) []byte {
	var out []byte
	for _, t := range chimeTones {
		n := int(math.Round(t.dur.Seconds() * float64(rate)))
		fade := max(n/10, 1)
		for i := 0; i < n; i++ {
			env := 1.0
			if i < fade {
				env = float64(i) / float64(fade)
			} else if i > n-fade {
				env = float64(n-i) / float64(fade)
			}
			v := int16(0.3 * env * math.MaxInt16 * math.Sin(2*math.Pi*t.freq*float64(i)/float64(rate)))
			for ch := 0; ch < Channels; ch++ {
				out = binary.LittleEndian.AppendUint16(out, uint16(v))
			}
		}
	}
	return out
}
