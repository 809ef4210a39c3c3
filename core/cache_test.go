package core

import (
	"fmt"
	"testing"
)

func newTestCachedOrderedMap(t *testing.T, size int) *CachedOrderedMap[uint32, uint64] {
	t.Helper()
	rs := NewHeapRawStore()
	a := NewPageAllocator(rs, 256)
	inner := NewOrderedMap[uint32, uint64](a.SubMemory(0), FixedUint32Codec(), FixedUint64Codec())
	return NewCachedOrderedMap[uint32, uint64](inner, size)
}

func TestCachedOrderedMapGetPopulatesFromBackingStore(t *testing.T) {
	c := newTestCachedOrderedMap(t, 8)
	if err := c.Insert(1, 100); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v, ok := c.Get(1); !ok || v != 100 {
		t.Fatalf("get(1) = %d,%v; want 100,true", v, ok)
	}
	// second get should hit the lru, not the backing store; observable
	// behaviour is the same either way, so just confirm correctness.
	if v, ok := c.Get(1); !ok || v != 100 {
		t.Fatalf("second get(1) = %d,%v; want 100,true", v, ok)
	}
}

func TestCachedOrderedMapRemoveEvictsCache(t *testing.T) {
	c := newTestCachedOrderedMap(t, 8)
	_ = c.Insert(1, 100)
	_, _ = c.Get(1) // warm the cache
	if _, ok := c.Remove(1); !ok {
		t.Fatalf("remove(1) reported nothing removed")
	}
	if _, ok := c.Get(1); ok {
		t.Fatalf("get(1) after remove still found a value (stale cache entry)")
	}
}

func TestCachedOrderedMapLenMatchesBackingStore(t *testing.T) {
	c := newTestCachedOrderedMap(t, 8)
	_ = c.Insert(1, 10)
	_ = c.Insert(2, 20)
	if c.Len() != 2 {
		t.Fatalf("len = %d; want 2", c.Len())
	}
}

func TestCachedOrderedMapEvictionDoesNotLoseData(t *testing.T) {
	c := newTestCachedOrderedMap(t, 1) // force immediate LRU eviction
	_ = c.Insert(1, 10)
	_ = c.Insert(2, 20) // evicts key 1 from the lru, not from the backing store
	if v, ok := c.Get(1); !ok || v != 10 {
		t.Fatalf("get(1) after lru eviction = %d,%v; want 10,true", v, ok)
	}
}

func newTestCachedMultimap(t *testing.T, size int) *CachedMultimap[uint32, uint32, uint64] {
	t.Helper()
	rs := NewHeapRawStore()
	a := NewPageAllocator(rs, 256)
	inner := NewMultimap[uint32, uint32, uint64](a.SubMemory(0), FixedUint32Codec(), FixedUint32Codec(), FixedUint64Codec())
	str := func(v uint32) string { return fmt.Sprintf("%d", v) }
	return NewCachedMultimap[uint32, uint32, uint64](inner, size, str, str)
}

func TestCachedMultimapGetInsertRemove(t *testing.T) {
	c := newTestCachedMultimap(t, 8)
	if err := c.Insert(1, 10, 100); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v, ok := c.Get(1, 10); !ok || v != 100 {
		t.Fatalf("get(1,10) = %d,%v; want 100,true", v, ok)
	}
	if _, ok := c.Remove(1, 10); !ok {
		t.Fatalf("remove(1,10) reported nothing removed")
	}
	if _, ok := c.Get(1, 10); ok {
		t.Fatalf("get(1,10) after remove still found a value")
	}
}

func TestCachedMultimapDistinctK2DoNotCollide(t *testing.T) {
	c := newTestCachedMultimap(t, 8)
	_ = c.Insert(1, 10, 100)
	_ = c.Insert(1, 20, 200)
	if v, ok := c.Get(1, 10); !ok || v != 100 {
		t.Fatalf("get(1,10) = %d,%v; want 100,true", v, ok)
	}
	if v, ok := c.Get(1, 20); !ok || v != 200 {
		t.Fatalf("get(1,20) = %d,%v; want 200,true", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d; want 2", c.Len())
	}
}
