package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// Events are callbacks invoked from the pump loop. Any of them may be nil.
type Events struct {
	// FirstAudio runs once, after the first chunk has been appended.
	FirstAudio func()
	// Tick runs for every playback position update.
	Tick func(position time.Duration)
	// Complete runs when the network stream ends.
	Complete func()
	// Drained runs once playback reaches the end of a completed stream.
	// The pump returns right after.
	Drained func()
}

// Pump reads body in chunks and feeds them through the manager until the
// buffer has drained, ctx is cancelled or something fails. Reading happens
// on its own goroutine; everything else runs on a single loop, so the
// manager never sees concurrent appends. body is closed before Pump
// returns.
func (m *Manager) Pump(ctx context.Context, body io.ReadCloser, ticks <-chan time.Duration, ev Events) error {
	g, ctx := errgroup.WithContext(ctx)

	// Unblocks the reader once the group is done, for whatever reason.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	chunks := make(chan []byte)
	g.Go(func() error {
		defer close(chunks)
		return readChunks(ctx, body, m.config.ChunkSize, chunks)
	})
	g.Go(func() error {
		return m.loop(ctx, chunks, ticks, ev)
	})

	err := g.Wait()
	_ = body.Close()
	return err
}

func readChunks(ctx context.Context, r io.Reader, size int, out chan<- []byte) error {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read audio stream: %w", err)
		}
	}
}

func (m *Manager) loop(ctx context.Context, chunks <-chan []byte, ticks <-chan time.Duration, ev Events) error {
	var received int
	var started bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				if received == 0 {
					return ErrEmptyStream
				}
				m.MarkComplete()
				if ev.Complete != nil {
					ev.Complete()
				}
				continue
			}
			received++
			m.Enqueue(chunk)

		case err := <-m.Pending():
			if err := m.AppendDone(err); err != nil {
				return err
			}
			if !started {
				started = true
				if ev.FirstAudio != nil {
					ev.FirstAudio()
				}
			}

		case err := <-m.Ended():
			if err := m.EndDone(err); err != nil {
				return err
			}
			if m.reportDrained(ev) {
				return nil
			}

		case pos := <-ticks:
			m.Kick()
			if ev.Tick != nil {
				ev.Tick(pos)
			}
			if m.reportDrained(ev) {
				return nil
			}
		}
	}
}

// reportDrained runs the Drained event once playback has reached the end of
// a finished stream.
func (m *Manager) reportDrained(ev Events) bool {
	if !m.Drained() {
		return false
	}
	if ev.Drained != nil {
		ev.Drained()
	}
	return true
}
