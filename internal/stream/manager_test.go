package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBuffer is a SourceBuffer where every byte holds a fixed amount of
// audio. In manual mode appends finish only when the test says so.
type fakeBuffer struct {
	mu       sync.Mutex
	perByte  time.Duration
	manual   bool
	failWith error
	endWith  error

	start, end time.Duration
	appends    [][]byte
	waiting    []chan error
	sizes      []int
	removed    [][2]time.Duration
	aborted    int
	closed     int
	ends       int
}

func (f *fakeBuffer) Append(chunk []byte) <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan error, 1)
	f.appends = append(f.appends, chunk)
	if f.manual {
		f.waiting = append(f.waiting, ch)
		f.sizes = append(f.sizes, len(chunk))
		return ch
	}
	if f.failWith != nil {
		ch <- f.failWith
		return ch
	}
	f.end += time.Duration(len(chunk)) * f.perByte
	ch <- nil
	return ch
}

// finish completes the oldest waiting append.
func (f *fakeBuffer) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.waiting[0]
	f.end += time.Duration(f.sizes[0]) * f.perByte
	f.waiting, f.sizes = f.waiting[1:], f.sizes[1:]
	ch <- nil
}

func (f *fakeBuffer) Remove(start, end time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, [2]time.Duration{start, end})
	f.start = end
	return nil
}

func (f *fakeBuffer) Buffered() (time.Duration, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.start, f.end
}

func (f *fakeBuffer) EndOfStream() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	ch := make(chan error, 1)
	ch <- f.endWith
	return ch
}

func (f *fakeBuffer) endCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ends
}

func (f *fakeBuffer) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
}

func (f *fakeBuffer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeBuffer) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appends)
}

type fakeClock struct {
	mu  sync.Mutex
	pos time.Duration
}

func (c *fakeClock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *fakeClock) SetPosition(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = d
}

func TestAppendsAreSerialized(t *testing.T) {
	buf := &fakeBuffer{perByte: time.Second, manual: true}
	m := NewManager(buf, &fakeClock{}, DefaultConfig())

	m.Enqueue([]byte("a"))
	m.Enqueue([]byte("bb"))
	m.Enqueue([]byte("ccc"))

	if got := buf.appendCount(); got != 1 {
		t.Fatalf("appends in flight = %d, want 1", got)
	}
	if got := m.Stats().Queued; got != 2 {
		t.Errorf("queued = %d, want 2", got)
	}

	for i := 2; i <= 3; i++ {
		buf.finish()
		if err := m.AppendDone(<-m.Pending()); err != nil {
			t.Fatalf("AppendDone() error = %v", err)
		}
		if got := buf.appendCount(); got != i {
			t.Fatalf("appends = %d, want %d", got, i)
		}
	}

	want := []string{"a", "bb", "ccc"}
	for i, w := range want {
		if string(buf.appends[i]) != w {
			t.Errorf("append %d = %q, want %q", i, buf.appends[i], w)
		}
	}
}

func TestEvictsBehindPosition(t *testing.T) {
	buf := &fakeBuffer{perByte: time.Second}
	clock := &fakeClock{}
	m := NewManager(buf, clock, DefaultConfig())

	m.Enqueue(make([]byte, 60))
	if err := m.AppendDone(<-m.Pending()); err != nil {
		t.Fatal(err)
	}
	if len(buf.removed) != 0 {
		t.Fatalf("nothing should be evicted yet, removed %v", buf.removed)
	}

	clock.SetPosition(100 * time.Second)
	m.Enqueue(make([]byte, 60))
	if err := m.AppendDone(<-m.Pending()); err != nil {
		t.Fatal(err)
	}
	if len(buf.removed) != 1 {
		t.Fatalf("expected one eviction, got %v", buf.removed)
	}
	if r := buf.removed[0]; r[0] != 0 || r[1] != 10*time.Second {
		t.Errorf("evicted %v, want [0s 10s]", r)
	}
	if behind := m.Stats().Behind; behind > 90*time.Second {
		t.Errorf("retained %v behind the position, want at most 90s", behind)
	}
}

func TestBackpressure(t *testing.T) {
	buf := &fakeBuffer{perByte: time.Second}
	clock := &fakeClock{}
	m := NewManager(buf, clock, DefaultConfig())

	m.Enqueue(make([]byte, 95))
	if err := m.AppendDone(<-m.Pending()); err != nil {
		t.Fatal(err)
	}
	m.Enqueue(make([]byte, 10))
	if m.Pending() != nil {
		t.Fatal("append should be held while more than 90s is buffered ahead")
	}
	if got := m.Stats().Queued; got != 1 {
		t.Errorf("queued = %d, want 1", got)
	}

	clock.SetPosition(10 * time.Second)
	m.Kick()
	if m.Pending() == nil {
		t.Fatal("append should resume once playback catches up")
	}
}

func TestDrained(t *testing.T) {
	buf := &fakeBuffer{perByte: time.Second}
	clock := &fakeClock{}
	m := NewManager(buf, clock, DefaultConfig())

	m.Enqueue(make([]byte, 10))
	if err := m.AppendDone(<-m.Pending()); err != nil {
		t.Fatal(err)
	}

	clock.SetPosition(10 * time.Second)
	if m.Drained() {
		t.Error("stream is not complete yet")
	}

	m.MarkComplete()
	if m.Drained() {
		t.Error("the buffer has not confirmed the end of the stream")
	}
	if err := m.EndDone(<-m.Ended()); err != nil {
		t.Fatal(err)
	}
	clock.SetPosition(9 * time.Second)
	if m.Drained() {
		t.Error("one second left should not count as drained")
	}
	clock.SetPosition(9*time.Second + 600*time.Millisecond)
	if !m.Drained() {
		t.Error("within the end threshold should count as drained")
	}
}

func TestEndOfStreamWaitsForAppends(t *testing.T) {
	buf := &fakeBuffer{perByte: time.Second, manual: true}
	m := NewManager(buf, &fakeClock{}, DefaultConfig())

	m.Enqueue([]byte("a"))
	m.Enqueue([]byte("b"))
	m.MarkComplete()
	if m.Ended() != nil || buf.endCount() != 0 {
		t.Fatal("end of stream signalled with chunks outstanding")
	}

	for i := 0; i < 2; i++ {
		buf.finish()
		if err := m.AppendDone(<-m.Pending()); err != nil {
			t.Fatal(err)
		}
	}
	if m.Ended() == nil || buf.endCount() != 1 {
		t.Fatalf("end of stream not signalled after the last append (ends = %d)", buf.endCount())
	}
	if err := m.EndDone(<-m.Ended()); err != nil {
		t.Errorf("EndDone() = %v", err)
	}

	m.Kick()
	if buf.endCount() != 1 {
		t.Errorf("end of stream signalled %d times, want 1", buf.endCount())
	}
}

func TestEndDoneWithoutAudio(t *testing.T) {
	boom := errors.New("no frames")
	tests := []struct {
		name    string
		perByte time.Duration
		endWith error
		want    error
	}{
		{"nothing decoded", 0, nil, ErrEmptyStream},
		{"buffer error", time.Second, boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &fakeBuffer{perByte: tt.perByte, endWith: tt.endWith}
			m := NewManager(buf, &fakeClock{}, DefaultConfig())
			m.Enqueue([]byte("abc"))
			if err := m.AppendDone(<-m.Pending()); err != nil {
				t.Fatal(err)
			}
			m.MarkComplete()
			if err := m.EndDone(<-m.Ended()); !errors.Is(err, tt.want) {
				t.Errorf("EndDone() = %v, want %v", err, tt.want)
			}
			if m.Drained() {
				t.Error("a failed stream must not count as drained")
			}
		})
	}
}

func TestStopIsIdempotent(t *testing.T) {
	buf := &fakeBuffer{perByte: time.Second, manual: true}
	m := NewManager(buf, &fakeClock{}, DefaultConfig())

	m.Enqueue([]byte("a"))
	m.Enqueue([]byte("b"))
	m.Stop()
	m.Stop()

	if buf.aborted != 1 {
		t.Errorf("aborted = %d, want 1", buf.aborted)
	}
	if buf.closed != 1 {
		t.Errorf("closed = %d, want 1", buf.closed)
	}
	if got := m.Stats().Queued; got != 0 {
		t.Errorf("queued after stop = %d, want 0", got)
	}

	m.Enqueue([]byte("c"))
	if got := buf.appendCount(); got != 1 {
		t.Errorf("appends after stop = %d, want 1", got)
	}
	if err := m.AppendDone(nil); !errors.Is(err, ErrStopped) {
		t.Errorf("AppendDone() after stop = %v, want ErrStopped", err)
	}
}

type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

func TestPump(t *testing.T) {
	buf := &fakeBuffer{perByte: 10 * time.Millisecond}
	clock := &fakeClock{}
	m := NewManager(buf, clock, Config{ChunkSize: 100})

	body := &trackingBody{Reader: bytes.NewReader(make([]byte, 1000))}
	ticks := make(chan time.Duration)

	var first, complete, drained int
	var last time.Duration
	done := make(chan error, 1)
	go func() {
		done <- m.Pump(context.Background(), body, ticks, Events{
			FirstAudio: func() { first++ },
			Complete:   func() { complete++ },
			Tick:       func(pos time.Duration) { last = pos },
			Drained:    func() { drained++ },
		})
	}()

	// 1000 bytes at 10ms per byte is ten seconds of audio.
	for pos := time.Duration(0); ; pos += 500 * time.Millisecond {
		clock.SetPosition(pos)
		select {
		case ticks <- pos:
			continue
		case err := <-done:
			if err != nil {
				t.Fatalf("Pump() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Pump() did not finish")
		}
		break
	}

	if first != 1 || complete != 1 || drained != 1 {
		t.Errorf("events first=%d complete=%d drained=%d, want 1 each", first, complete, drained)
	}
	if last < 9500*time.Millisecond {
		t.Errorf("drained too early at %v", last)
	}
	if got := m.Stats().Bytes; got != 1000 {
		t.Errorf("bytes appended = %d, want 1000", got)
	}
	if !body.closed.Load() {
		t.Error("body should be closed")
	}
}

func TestPumpEmptyBody(t *testing.T) {
	m := NewManager(&fakeBuffer{perByte: time.Millisecond}, &fakeClock{}, DefaultConfig())
	err := m.Pump(context.Background(), io.NopCloser(bytes.NewReader(nil)), nil, Events{})
	if !errors.Is(err, ErrEmptyStream) {
		t.Errorf("Pump() error = %v, want ErrEmptyStream", err)
	}
}

func TestPumpAppendFailure(t *testing.T) {
	boom := errors.New("decode failed")
	m := NewManager(&fakeBuffer{perByte: time.Millisecond, failWith: boom}, &fakeClock{}, DefaultConfig())
	err := m.Pump(context.Background(), io.NopCloser(bytes.NewReader([]byte("data"))), nil, Events{})
	if !errors.Is(err, boom) {
		t.Errorf("Pump() error = %v, want %v", err, boom)
	}
}

func TestPumpFailsWithoutAudio(t *testing.T) {
	// Appends succeed but nothing playable comes out, and no tick ever
	// arrives. The pump must still end.
	m := NewManager(&fakeBuffer{}, &fakeClock{}, DefaultConfig())
	var first int
	done := make(chan error, 1)
	go func() {
		done <- m.Pump(context.Background(), io.NopCloser(bytes.NewReader([]byte("not audio"))), nil, Events{
			FirstAudio: func() { first++ },
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrEmptyStream) {
			t.Errorf("Pump() error = %v, want ErrEmptyStream", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Pump() hung on a stream without audio")
	}
	if first != 1 {
		t.Errorf("FirstAudio ran %d times, want 1", first)
	}
}

// blockingBody never returns data until closed.
type blockingBody struct {
	once   sync.Once
	closed chan struct{}
}

func (b *blockingBody) Read([]byte) (int, error) {
	<-b.closed
	return 0, errors.New("read on closed body")
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestPumpCancel(t *testing.T) {
	m := NewManager(&fakeBuffer{perByte: time.Millisecond}, &fakeClock{}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- m.Pump(ctx, &blockingBody{closed: make(chan struct{})}, nil, Events{})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Pump() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Pump() did not return after cancel")
	}
}
