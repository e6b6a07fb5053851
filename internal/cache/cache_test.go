package cache

import (
	"fmt"
	"testing"
)

func TestEmbeddingCache_EvictsOldestHalf(t *testing.T) {
	c := NewEmbeddingCache(4)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("text-%d", i), []float32{float32(i)})
	}
	if c.Len() != 4 {
		t.Fatalf("len = %d, want 4", c.Len())
	}

	c.Put("text-4", []float32{4})

	if _, ok := c.Get("text-0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("text-1"); ok {
		t.Error("second-oldest entry should have been evicted")
	}
	for i := 2; i <= 4; i++ {
		if _, ok := c.Get(fmt.Sprintf("text-%d", i)); !ok {
			t.Errorf("recent entry text-%d should survive eviction", i)
		}
	}
}

func TestEmbeddingCache_NormalizedKeysShareSlot(t *testing.T) {
	c := NewEmbeddingCache(8)
	c.Put("Apple  Inc.", []float32{1})
	if _, ok := c.Get("apple inc."); !ok {
		t.Error("case and spacing variants should hit the same slot")
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestSimilarityCache_PairKeyOrderIndependent(t *testing.T) {
	c := NewSimilarityCache(64)
	c.Put("a", "b", 0.7)
	if score, ok := c.Get("b", "a"); !ok || score != 0.7 {
		t.Errorf("Get(b, a) = %v, %v; want 0.7, true", score, ok)
	}
}

// A full shard sheds its older half instead of clearing wholesale, so a
// freshly scored pair never evicts everything scored after it.
func TestSimilarityCache_OverflowDropsOlderHalf(t *testing.T) {
	// maxSize 16 over 16 shards bounds every shard at 2 entries.
	c := NewSimilarityCache(16)

	// Find three distinct keys landing in the same shard.
	target := c.shard(PairKey("seed", "0"))
	var same [][2]string
	for i := 0; len(same) < 3 && i < 10000; i++ {
		a, b := "seed", fmt.Sprintf("%d", i)
		if c.shard(PairKey(a, b)) == target {
			same = append(same, [2]string{a, b})
		}
	}
	if len(same) < 3 {
		t.Fatal("could not find colliding keys")
	}

	c.Put(same[0][0], same[0][1], 0.1)
	c.Put(same[1][0], same[1][1], 0.2)
	// Shard is now full; the next insert drops the older half.
	c.Put(same[2][0], same[2][1], 0.3)

	if _, ok := c.Get(same[0][0], same[0][1]); ok {
		t.Error("oldest pair should have been evicted")
	}
	if score, ok := c.Get(same[1][0], same[1][1]); !ok || score != 0.2 {
		t.Errorf("newer pair lost on overflow: %v, %v", score, ok)
	}
	if score, ok := c.Get(same[2][0], same[2][1]); !ok || score != 0.3 {
		t.Errorf("just-inserted pair missing: %v, %v", score, ok)
	}
}

func TestSimilarityCache_InvalidateRemovesPairsForID(t *testing.T) {
	c := NewSimilarityCache(64)
	c.Put("x", "y", 0.9)
	c.Put("x", "z", 0.8)
	c.Put("y", "z", 0.7)

	c.Invalidate("x")

	if _, ok := c.Get("x", "y"); ok {
		t.Error("pair (x, y) should be invalidated")
	}
	if _, ok := c.Get("x", "z"); ok {
		t.Error("pair (x, z) should be invalidated")
	}
	if score, ok := c.Get("y", "z"); !ok || score != 0.7 {
		t.Errorf("unrelated pair lost on invalidation: %v, %v", score, ok)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}
