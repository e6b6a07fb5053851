package cache

import (
	"strings"
	"sync"
)

// similarityShards partitions the similarity cache to reduce lock contention
// when many workers score entity pairs concurrently.
const similarityShards = 16

// SimilarityCache memoizes pairwise similarity scores keyed by an
// order-independent pair key. Shards are bounded individually; a full shard
// drops its older half, so recently scored pairs stay warm.
type SimilarityCache struct {
	shards   [similarityShards]similarityShard
	maxShard int
}

type similarityShard struct {
	mu      sync.RWMutex
	entries map[string]float64
	order   []string
}

// NewSimilarityCache creates a cache holding roughly maxSize scores.
func NewSimilarityCache(maxSize int) *SimilarityCache {
	if maxSize <= 0 {
		maxSize = 8192
	}
	c := &SimilarityCache{maxShard: maxSize/similarityShards + 1}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]float64)
	}
	return c
}

// PairKey builds an order-independent key for two entity identifiers.
// PairKey(a, b) == PairKey(b, a) always holds.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (c *SimilarityCache) shard(key string) *similarityShard {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return &c.shards[h%similarityShards]
}

// Get returns the cached score for the pair, if present.
func (c *SimilarityCache) Get(a, b string) (float64, bool) {
	key := PairKey(a, b)
	s := c.shard(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.entries[key]
	return score, ok
}

// Put stores a score for the pair.
func (c *SimilarityCache) Put(a, b string, score float64) {
	key := PairKey(a, b)
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		if len(s.order) >= c.maxShard {
			s.evictOldest()
		}
		s.order = append(s.order, key)
	}
	s.entries[key] = score
}

// evictOldest drops the older half of the shard (lock held).
func (s *similarityShard) evictOldest() {
	drop := len(s.order) / 2
	if drop == 0 {
		drop = 1
	}
	for _, key := range s.order[:drop] {
		delete(s.entries, key)
	}
	s.order = append(s.order[:0], s.order[drop:]...)
}

// Invalidate removes every cached pair involving the given entity ID.
// Called after a merge changes an entity's identity.
func (c *SimilarityCache) Invalidate(id string) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for key := range s.entries {
			if left, right, ok := strings.Cut(key, "|"); ok && (left == id || right == id) {
				delete(s.entries, key)
			}
		}
		kept := s.order[:0]
		for _, key := range s.order {
			if _, ok := s.entries[key]; ok {
				kept = append(kept, key)
			}
		}
		s.order = kept
		s.mu.Unlock()
	}
}

// Len returns the total number of cached scores.
func (c *SimilarityCache) Len() int {
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
