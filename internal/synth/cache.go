package synth

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"
)

// Cache stores complete audio streams.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// KeyFunc derives a cache key for a request.
type KeyFunc func(req Request) string

// CachingStreamer replays streams that were previously received in full
// and records new ones. A stream that is closed or fails before its end is
// never stored.
type CachingStreamer struct {
	next  Streamer
	cache Cache
	key   KeyFunc
	limit int
}

// NewCachingStreamer wraps next. Streams larger than limit bytes are not
// recorded; a limit of zero means 32 MiB.
func NewCachingStreamer(next Streamer, cache Cache, key KeyFunc, limit int) *CachingStreamer {
	if limit <= 0 {
		limit = 32 << 20
	}
	return &CachingStreamer{next: next, cache: cache, key: key, limit: limit}
}

// Stream implements Streamer.
func (c *CachingStreamer) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	key := c.key(req)
	if data, ok := c.cache.Get(key); ok && len(data) > 0 {
		log.Debug("Replaying cached audio", "bytes", len(data))
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	body, err := c.next.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &recorder{ReadCloser: body, limit: c.limit, done: func(data []byte) {
		if err := c.cache.Put(key, data); err != nil {
			log.Debug("Could not cache audio", "err", err)
		}
	}}, nil
}

// recorder copies everything read through it and hands the copy over once
// the underlying stream reaches EOF.
type recorder struct {
	io.ReadCloser
	buf   bytes.Buffer
	limit int
	over  bool
	done  func([]byte)
}

func (r *recorder) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 && !r.over {
		if r.buf.Len()+n > r.limit {
			r.over = true
			r.buf = bytes.Buffer{}
		} else {
			r.buf.Write(p[:n])
		}
	}
	if errors.Is(err, io.EOF) && !r.over && r.done != nil {
		r.done(r.buf.Bytes())
		r.done = nil
	}
	return n, err
}
