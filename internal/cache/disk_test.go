package cache

import (
	"bytes"
	"errors"
	"testing"
)

func TestDiskCacheRoundTrip(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	defer dc.Close() //nolint:errcheck

	small := []byte("tiny")
	large := bytes.Repeat([]byte("compressible audio "), 500)

	for key, value := range map[string][]byte{"small": small, "large": large} {
		if err := dc.Put(key, value); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
		got, ok := dc.Get(key)
		if !ok || !bytes.Equal(got, value) {
			t.Errorf("Get(%s) = %d bytes, %v; want %d bytes", key, len(got), ok, len(value))
		}
	}

	if _, ok := dc.Get("missing"); ok {
		t.Error("Get() of a missing key should miss")
	}

	s := dc.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.ItemCount != 2 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.Size >= int64(len(small)+len(large)) {
		t.Errorf("expected compression, size on disk %d", s.Size)
	}
}

func TestDiskCachePersists(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if err := dc.Put(Key("voice", "model", "text"), []byte("mp3 data")); err != nil {
		t.Fatal(err)
	}
	if err := dc.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewDiskCache(dir, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close() //nolint:errcheck
	got, ok := reopened.Get(Key("voice", "model", "text"))
	if !ok || string(got) != "mp3 data" {
		t.Errorf("Get() after reopen = %q, %v", got, ok)
	}
}

func TestDiskCacheEviction(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 100)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close() //nolint:errcheck

	for _, key := range []string{"a", "b", "c"} {
		if err := dc.Put(key, make([]byte, 40)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	if _, ok := dc.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := dc.Get("c"); !ok {
		t.Error("newest entry should be kept")
	}
	if dc.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", dc.Stats().Evictions)
	}

	if err := dc.Put("huge", make([]byte, 500)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("Put() of an oversized item error = %v, want ErrItemTooLarge", err)
	}
}

func TestDiskCacheDeleteAndClear(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close() //nolint:errcheck

	_ = dc.Put("a", []byte("1"))
	_ = dc.Put("b", []byte("2"))
	if err := dc.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := dc.Get("a"); ok {
		t.Error("deleted entry still present")
	}
	if err := dc.Clear(); err != nil {
		t.Fatal(err)
	}
	if n := dc.Stats().ItemCount; n != 0 {
		t.Errorf("ItemCount after Clear = %d", n)
	}
}

func TestKey(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Key() must separate parts")
	}
	if Key("x") != Key("x") {
		t.Error("Key() must be deterministic")
	}
}
