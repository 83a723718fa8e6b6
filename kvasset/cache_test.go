package kvasset

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func cacheEntry(key string, size int) *cachedEntry {
	return &cachedEntry{entry: &Entry{Key: key, Body: make([]byte, size)}, etag: `"` + key + `"`}
}

func TestEdgeCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newEdgeCache(1024, 2, 0)

	c.put("a", cacheEntry("a", 10))
	time.Sleep(time.Millisecond)
	c.put("b", cacheEntry("b", 10))
	time.Sleep(time.Millisecond)
	assert.NotNil(t, c.get("a"))
	time.Sleep(time.Millisecond)
	c.put("c", cacheEntry("c", 10))

	assert.Equal(t, 2, c.len())
	assert.NotNil(t, c.get("a"))
	assert.Nil(t, c.get("b"))
	assert.NotNil(t, c.get("c"))
}

func TestEdgeCacheRespectsSize(t *testing.T) {
	c := newEdgeCache(100, 100, 0)

	for i := 0; i < 5; i++ {
		c.put(strconv.Itoa(i), cacheEntry(strconv.Itoa(i), 30))
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 3, c.len())
	assert.LessOrEqual(t, c.size, int64(100))

	c.put("huge", cacheEntry("huge", 101))
	assert.Nil(t, c.get("huge"), "entries larger than the cache are skipped")
}

func TestEdgeCacheReplace(t *testing.T) {
	c := newEdgeCache(0, 0, 0)
	c.put("a", cacheEntry("a", 10))
	c.put("a", cacheEntry("a", 20))

	assert.Equal(t, 1, c.len())
	assert.Equal(t, int64(20), c.size)
}

func TestEdgeCacheExpires(t *testing.T) {
	c := newEdgeCache(0, 0, 20*time.Millisecond)
	c.put("index.html", cacheEntry("index.html", 10))
	assert.NotNil(t, c.get("index.html"))

	time.Sleep(30 * time.Millisecond)
	assert.Nil(t, c.get("index.html"), "expired entries must be looked up again")
	assert.Equal(t, 0, c.len())
	assert.Equal(t, int64(0), c.size)
}
