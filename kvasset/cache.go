package kvasset

import (
	"sync"
	"time"
)

// edgeCache keeps recently served entries in process memory. Entries are
// keyed by path, so a positive ttl bounds how long a store update stays
// invisible.
type edgeCache struct {
	mu       sync.Mutex
	files    map[string]*cachedEntry
	size     int64
	maxSize  int64
	maxFiles int
	ttl      time.Duration
}

type cachedEntry struct {
	entry    *Entry
	etag     string
	storedAt time.Time
	lastUsed time.Time
}

const (
	defaultCacheMaxSize  = 100 * 1024 * 1024 // 100MB
	defaultCacheMaxFiles = 1000
	maxCacheableSize     = 10 * 1024 * 1024
)

func newEdgeCache(maxSize int64, maxFiles int, ttl time.Duration) *edgeCache {
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	if maxFiles <= 0 {
		maxFiles = defaultCacheMaxFiles
	}
	return &edgeCache{
		files:    make(map[string]*cachedEntry),
		maxSize:  maxSize,
		maxFiles: maxFiles,
		ttl:      ttl,
	}
}

func (c *edgeCache) get(key string) *cachedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, ok := c.files[key]
	if !ok {
		return nil
	}
	now := time.Now()
	if c.ttl > 0 && now.Sub(file.storedAt) > c.ttl {
		c.size -= file.entry.Size()
		delete(c.files, key)
		return nil
	}
	file.lastUsed = now
	return file
}

func (c *edgeCache) put(key string, file *cachedEntry) {
	size := file.entry.Size()
	if size > maxCacheableSize || size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.files[key]; ok {
		c.size -= old.entry.Size()
		delete(c.files, key)
	}
	for len(c.files) > 0 && (len(c.files) >= c.maxFiles || c.size+size > c.maxSize) {
		c.evict()
	}

	file.storedAt = time.Now()
	file.lastUsed = file.storedAt
	c.files[key] = file
	c.size += size
}

func (c *edgeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// evict removes the least recently used entry. Caller holds mu.
func (c *edgeCache) evict() {
	var oldestKey string
	var oldestTime time.Time

	for key, file := range c.files {
		if oldestKey == "" || file.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = file.lastUsed
		}
	}

	if oldestKey != "" {
		c.size -= c.files[oldestKey].entry.Size()
		delete(c.files, oldestKey)
	}
}
