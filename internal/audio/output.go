package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// PCM format shared by the decoder and the output: 16-bit little endian
// stereo.
const (
	Channels       = 2
	bytesPerSample = 2
	frameSize      = Channels * bytesPerSample
)

// Player is a handle on a sound being played. *oto.Player satisfies it.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
}

// Output creates players that pull PCM from a reader.
type Output interface {
	NewPlayer(r io.Reader) Player
	SampleRate() int
}

// OutputConfig configures the audio device.
type OutputConfig struct {
	SampleRate int           // 44100 or 48000 Hz only
	BufferSize time.Duration // device buffer, zero for the driver default
}

// DefaultOutputConfig returns CD quality output with a short buffer, so
// pausing takes effect quickly.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		SampleRate: 44100,
		BufferSize: 100 * time.Millisecond,
	}
}

func validateConfig(config OutputConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %s", config.BufferSize)
	}
	return nil
}

// OtoOutput plays audio on the default device.
type OtoOutput struct {
	ctx  *oto.Context
	rate int
}

// oto allows a single context per process.
var (
	otoOnce   sync.Once
	otoOutput *OtoOutput
	otoErr    error
)

// NewOtoOutput opens the audio device. The device is opened once; later
// calls return the same output and ignore config.
func NewOtoOutput(config OutputConfig) (*OtoOutput, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoOutput = &OtoOutput{ctx: ctx, rate: config.SampleRate}
	})
	return otoOutput, otoErr
}

// NewPlayer implements Output.
func (o *OtoOutput) NewPlayer(r io.Reader) Player {
	return o.ctx.NewPlayer(r)
}

// SampleRate implements Output.
func (o *OtoOutput) SampleRate() int {
	return o.rate
}

// release stops p and frees it if the player supports closing.
func release(p Player) {
	if p == nil {
		return
	}
	p.Pause()
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}
