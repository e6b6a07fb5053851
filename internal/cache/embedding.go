// Package cache provides bounded in-memory caches for embedding vectors and
// pairwise similarity results. Both caches shed load by discarding entries
// rather than blocking writers, so a cold cache only costs recomputation.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"
)

// EmbeddingCache is a bounded map from normalized text to embedding vector.
// When the cache reaches capacity the oldest half of the entries is dropped.
type EmbeddingCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	order   []string
	maxSize int
}

// NewEmbeddingCache creates a cache holding at most maxSize vectors.
func NewEmbeddingCache(maxSize int) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &EmbeddingCache{
		entries: make(map[string][]float32, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// NormalizeKey canonicalizes text for cache lookup: case folded with runs of
// whitespace collapsed to a single space. Texts that differ only in casing
// or spacing share one cache slot.
func NormalizeKey(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(lower))
	inSpace := false
	for _, r := range lower {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, if present.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := NormalizeKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.entries[key]
	return vec, ok
}

// Put stores a vector under the normalized key for text.
func (c *EmbeddingCache) Put(text string, vec []float32) {
	key := NormalizeKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= c.maxSize {
			c.evictOldest()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = vec
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest drops the oldest half of the entries (lock held).
func (c *EmbeddingCache) evictOldest() {
	drop := len(c.order) / 2
	if drop == 0 {
		drop = 1
	}
	for _, key := range c.order[:drop] {
		delete(c.entries, key)
	}
	c.order = append(c.order[:0], c.order[drop:]...)
}
