package services

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/config"
)

func newTestCache(t *testing.T, maxBytes int64, ttl time.Duration) *ReadCache {
	t.Helper()
	cache, err := NewReadCache(config.CacheConfig{
		Dir:      t.TempDir(),
		MaxBytes: maxBytes,
		TTL:      ttl,
	})
	if err != nil {
		t.Fatalf("NewReadCache: %v", err)
	}
	return cache
}

func readEntry(t *testing.T, cache *ReadCache, key string) ([]byte, bool) {
	t.Helper()
	rc, ok := cache.Open(key)
	if !ok {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading cache entry: %v", err)
	}
	return data, true
}

func TestCacheStoreAndOpen(t *testing.T) {
	cache := newTestCache(t, 1024*1024, time.Hour)

	if _, ok := cache.Open("missing"); ok {
		t.Fatal("expected a miss for an unknown key")
	}
	if cache.Exists("missing") {
		t.Fatal("Exists should be false for an unknown key")
	}

	content := []byte("decrypted plaintext bytes")
	if err := cache.StoreBytes("blob-1", content); err != nil {
		t.Fatalf("StoreBytes: %v", err)
	}
	if !cache.Exists("blob-1") {
		t.Fatal("Exists should be true after store")
	}

	got, ok := readEntry(t, cache, "blob-1")
	if !ok {
		t.Fatal("expected a hit after store")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("cache content mismatch: got %q", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := newTestCache(t, 1024*1024, time.Hour)
	if err := cache.StoreBytes("blob-1", []byte("stale soon")); err != nil {
		t.Fatalf("StoreBytes: %v", err)
	}

	cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if cache.Exists("blob-1") {
		t.Fatal("Exists should be false once the entry expires")
	}
	if _, ok := cache.Open("blob-1"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if _, err := os.Stat(cache.entryPath("blob-1")); !os.IsNotExist(err) {
		t.Fatal("expected expired entry removed from disk")
	}
}

func TestCacheEvictExpired(t *testing.T) {
	cache := newTestCache(t, 1024*1024, time.Hour)

	base := time.Now()
	clock := base
	cache.now = func() time.Time { return clock }

	cache.StoreBytes("old", []byte("old"))
	clock = base.Add(30 * time.Minute)
	cache.StoreBytes("fresh", []byte("fresh"))

	clock = base.Add(80 * time.Minute)
	if n := cache.EvictExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry, evicted %d", n)
	}
	if _, ok := cache.Open("fresh"); !ok {
		t.Fatal("fresh entry must survive the sweep")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	cache := newTestCache(t, 30, time.Hour)

	base := time.Now()
	clock := base
	cache.now = func() time.Time { return clock }

	cache.StoreBytes("a", bytes.Repeat([]byte("a"), 10))
	clock = base.Add(time.Second)
	cache.StoreBytes("b", bytes.Repeat([]byte("b"), 10))
	clock = base.Add(2 * time.Second)
	cache.StoreBytes("c", bytes.Repeat([]byte("c"), 10))

	// Touch "a" so "b" becomes the least recently read.
	clock = base.Add(3 * time.Second)
	if _, ok := readEntry(t, cache, "a"); !ok {
		t.Fatal("expected a to be cached")
	}

	clock = base.Add(4 * time.Second)
	cache.StoreBytes("d", bytes.Repeat([]byte("d"), 10))

	if _, ok := cache.Open("b"); ok {
		t.Fatal("expected b evicted as least recently read")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := cache.Open(key); !ok {
			t.Fatalf("expected %s to survive eviction", key)
		}
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := newTestCache(t, 1024, time.Hour)
	cache.StoreBytes("gone", []byte("bytes"))
	cache.Invalidate("gone")
	if _, ok := cache.Open("gone"); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}

func TestCacheOrphanReconciliation(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewReadCache(config.CacheConfig{Dir: dir, MaxBytes: 1024, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewReadCache: %v", err)
	}
	cache.StoreBytes("kept", []byte("kept bytes"))

	orphan := filepath.Join(dir, "deadbeef.bin")
	if err := os.WriteFile(orphan, []byte("orphan"), 0o600); err != nil {
		t.Fatalf("writing orphan: %v", err)
	}

	// A fresh instance over the same directory reconciles disk and index.
	reopened, err := NewReadCache(config.CacheConfig{Dir: dir, MaxBytes: 1024, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewReadCache reopen: %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatal("expected orphan file removed on reconciliation")
	}
	if got, ok := readEntry(t, reopened, "kept"); !ok || !bytes.Equal(got, []byte("kept bytes")) {
		t.Fatal("indexed entry must survive reconciliation")
	}
}

func TestCacheWriterAbort(t *testing.T) {
	cache := newTestCache(t, 1024, time.Hour)
	w, err := cache.Writer("partial")
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	w.Write([]byte("half a downl"))
	w.Abort()

	if _, ok := cache.Open("partial"); ok {
		t.Fatal("aborted write must not be visible")
	}
}
