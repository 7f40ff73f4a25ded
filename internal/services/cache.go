package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/config"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
)

type cacheEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	StoredAt     time.Time `json:"stored_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// ReadCache is a disk cache of decrypted plaintext for blobs whose bytes
// have migrated to the remote tier. Entries expire after a TTL and the
// least-recently-read entries are evicted once the cache exceeds its size
// budget. The metadata index is a JSON file beside the data; files on disk
// without an index entry are treated as orphans and removed on
// reconciliation.
type ReadCache struct {
	dir      string
	maxBytes int64
	ttl      time.Duration
	sweep    time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry

	now func() time.Time
}

func NewReadCache(cfg config.CacheConfig) (*ReadCache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, err
	}
	c := &ReadCache{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		ttl:      cfg.TTL,
		sweep:    cfg.SweepInterval,
		entries:  make(map[string]*cacheEntry),
		now:      time.Now,
	}
	c.loadIndex()
	c.reconcile()
	return c, nil
}

func (c *ReadCache) indexPath() string {
	return filepath.Join(c.dir, "index.json")
}

// entryPath hashes the key so arbitrary blob ids map to safe filenames.
func (c *ReadCache) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".bin")
}

func (c *ReadCache) loadIndex() {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		return
	}
	var entries []*cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("cache_index_corrupt", map[string]interface{}{"path": c.indexPath()})
		return
	}
	for _, e := range entries {
		c.entries[e.Key] = e
	}
}

// saveIndex writes the index atomically. Callers must hold mu.
func (c *ReadCache) saveIndex() {
	entries := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(c.dir, "index_*")
	if err != nil {
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), c.indexPath()); err != nil {
		os.Remove(tmp.Name())
	}
}

// reconcile drops index entries whose data file is missing and deletes data
// files the index does not know about.
func (c *ReadCache) reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()

	known := make(map[string]string, len(c.entries))
	for key := range c.entries {
		path := c.entryPath(key)
		if _, err := os.Stat(path); err != nil {
			delete(c.entries, key)
			continue
		}
		known[filepath.Base(path)] = key
	}

	files, err := os.ReadDir(c.dir)
	if err == nil {
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || name == "index.json" {
				continue
			}
			if _, ok := known[name]; !ok {
				os.Remove(filepath.Join(c.dir, name))
			}
		}
	}
	c.saveIndex()
}

// Exists reports whether key has a live cache entry. Unlike Open it neither
// refreshes recency nor removes an expired entry.
func (c *ReadCache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(entry.StoredAt) <= c.ttl
}

// Open returns a reader over the cached plaintext for key, or false on a
// miss. Expired entries count as misses and are removed. A hit refreshes the
// entry's recency.
func (c *ReadCache) Open(key string) (io.ReadCloser, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	now := c.now()
	if c.ttl > 0 && now.Sub(entry.StoredAt) > c.ttl {
		delete(c.entries, key)
		path := c.entryPath(key)
		c.saveIndex()
		c.mu.Unlock()
		os.Remove(path)
		return nil, false
	}
	entry.LastAccessed = now
	c.saveIndex()
	c.mu.Unlock()

	f, err := os.Open(c.entryPath(key))
	if err != nil {
		c.Invalidate(key)
		return nil, false
	}
	return f, true
}

// StoreBytes caches a full plaintext buffer under key.
func (c *ReadCache) StoreBytes(key string, data []byte) error {
	w, err := c.Writer(key)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

// CacheWriter stages an entry in a temp file; nothing is visible to readers
// until Commit.
type CacheWriter struct {
	cache *ReadCache
	key   string
	tmp   *os.File
	size  int64
}

func (c *ReadCache) Writer(key string) (*CacheWriter, error) {
	tmp, err := os.CreateTemp(c.dir, "stage_*")
	if err != nil {
		return nil, err
	}
	return &CacheWriter{cache: c, key: key, tmp: tmp}, nil
}

func (w *CacheWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *CacheWriter) Abort() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

func (w *CacheWriter) Commit() error {
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}

	c := w.cache
	c.mu.Lock()
	if err := os.Rename(w.tmp.Name(), c.entryPath(w.key)); err != nil {
		c.mu.Unlock()
		os.Remove(w.tmp.Name())
		return err
	}
	now := c.now()
	c.entries[w.key] = &cacheEntry{
		Key:          w.key,
		Size:         w.size,
		StoredAt:     now,
		LastAccessed: now,
	}
	c.saveIndex()
	c.mu.Unlock()

	c.EnforceSizeLimit()
	return nil
}

// Invalidate removes an entry if present.
func (c *ReadCache) Invalidate(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.saveIndex()
	}
	c.mu.Unlock()
	if ok {
		os.Remove(c.entryPath(key))
	}
}

// EvictExpired removes every entry older than the TTL.
func (c *ReadCache) EvictExpired() int {
	c.mu.Lock()
	now := c.now()
	var stale []string
	for key, entry := range c.entries {
		if c.ttl > 0 && now.Sub(entry.StoredAt) > c.ttl {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(c.entries, key)
	}
	if len(stale) > 0 {
		c.saveIndex()
	}
	c.mu.Unlock()

	for _, key := range stale {
		os.Remove(c.entryPath(key))
	}
	return len(stale)
}

// EnforceSizeLimit evicts least-recently-read entries until total size fits
// the budget.
func (c *ReadCache) EnforceSizeLimit() int {
	if c.maxBytes <= 0 {
		return 0
	}

	c.mu.Lock()
	var total int64
	entries := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		total += e.Size
		entries = append(entries, e)
	}
	if total <= c.maxBytes {
		c.mu.Unlock()
		return 0
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessed.Before(entries[j].LastAccessed)
	})

	var evicted []string
	for _, e := range entries {
		if total <= c.maxBytes {
			break
		}
		delete(c.entries, e.Key)
		total -= e.Size
		evicted = append(evicted, e.Key)
	}
	if len(evicted) > 0 {
		c.saveIndex()
	}
	c.mu.Unlock()

	for _, key := range evicted {
		os.Remove(c.entryPath(key))
	}
	return len(evicted)
}

// StartSweeper runs TTL and size enforcement on a ticker until stop is
// closed.
func (c *ReadCache) StartSweeper(stop <-chan struct{}) {
	if c.sweep <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				expired := c.EvictExpired()
				evicted := c.EnforceSizeLimit()
				if expired > 0 || evicted > 0 {
					logger.Info("cache_sweep", map[string]interface{}{
						"expired": expired,
						"evicted": evicted,
					})
				}
			case <-stop:
				return
			}
		}
	}()
}
