package core

import lru "github.com/hashicorp/golang-lru/v2"

// CachedOrderedMap fronts an OrderedMap with an in-memory LRU so that
// repeated Gets for hot keys skip the B+tree walk. Writes go through to the
// underlying map first and only update the cache once they succeed, so the
// cache never diverges from durable state.
type CachedOrderedMap[K comparable, V any] struct {
	inner *OrderedMap[K, V]
	lru   *lru.Cache[K, V]
}

// NewCachedOrderedMap wraps inner with an LRU of the given size. size must
// be positive.
func NewCachedOrderedMap[K comparable, V any](inner *OrderedMap[K, V], size int) *CachedOrderedMap[K, V] {
	c, err := lru.New[K, V](size)
	if err != nil {
		Trap("cache: %v", err)
	}
	return &CachedOrderedMap[K, V]{inner: inner, lru: c}
}

// Get returns the value for key, consulting the cache before the backing
// OrderedMap.
func (c *CachedOrderedMap[K, V]) Get(key K) (V, bool) {
	if v, ok := c.lru.Get(key); ok {
		return v, true
	}
	v, ok := c.inner.Get(key)
	if ok {
		c.lru.Add(key, v)
	}
	return v, ok
}

// Insert writes key/value through to the backing OrderedMap and refreshes
// the cache entry.
func (c *CachedOrderedMap[K, V]) Insert(key K, value V) error {
	if err := c.inner.Insert(key, value); err != nil {
		return err
	}
	c.lru.Add(key, value)
	return nil
}

// Remove deletes key from the backing OrderedMap and evicts any cached
// entry.
func (c *CachedOrderedMap[K, V]) Remove(key K) (V, bool) {
	v, ok := c.inner.Remove(key)
	c.lru.Remove(key)
	return v, ok
}

// Len returns the number of entries in the backing OrderedMap. The cache
// never holds entries the backing map doesn't, so this is always accurate.
func (c *CachedOrderedMap[K, V]) Len() uint64 { return c.inner.Len() }

// Iter bypasses the cache entirely: iteration reads straight from the
// backing OrderedMap, which is always authoritative.
func (c *CachedOrderedMap[K, V]) Iter() *Iterator[K, V] { return c.inner.Iter() }

// cachedMultimapKey is the LRU key for a CachedMultimap: the pair of
// strings the caller's k1str/k2str produce for the two multimap keys (not
// the codec-encoded composite key Multimap stores).
type cachedMultimapKey struct{ k1, k2 string }

// CachedMultimap fronts a Multimap with an in-memory LRU, keyed by a string
// form of (K1,K2) since composite generic keys cannot be used directly as
// Go map keys unless they are themselves comparable.
type CachedMultimap[K1, K2 comparable, V any] struct {
	inner *Multimap[K1, K2, V]
	lru   *lru.Cache[cachedMultimapKey, V]
	k1str func(K1) string
	k2str func(K2) string
}

// NewCachedMultimap wraps inner with an LRU of the given size. k1str/k2str
// must produce a distinct string for every distinct key value.
func NewCachedMultimap[K1, K2 comparable, V any](inner *Multimap[K1, K2, V], size int, k1str func(K1) string, k2str func(K2) string) *CachedMultimap[K1, K2, V] {
	c, err := lru.New[cachedMultimapKey, V](size)
	if err != nil {
		Trap("cache: %v", err)
	}
	return &CachedMultimap[K1, K2, V]{inner: inner, lru: c, k1str: k1str, k2str: k2str}
}

func (c *CachedMultimap[K1, K2, V]) key(k1 K1, k2 K2) cachedMultimapKey {
	return cachedMultimapKey{k1: c.k1str(k1), k2: c.k2str(k2)}
}

// Get returns the value for (k1,k2), consulting the cache before the
// backing Multimap.
func (c *CachedMultimap[K1, K2, V]) Get(k1 K1, k2 K2) (V, bool) {
	ck := c.key(k1, k2)
	if v, ok := c.lru.Get(ck); ok {
		return v, true
	}
	v, ok := c.inner.Get(k1, k2)
	if ok {
		c.lru.Add(ck, v)
	}
	return v, ok
}

// Insert writes (k1,k2,value) through to the backing Multimap and refreshes
// the cache entry.
func (c *CachedMultimap[K1, K2, V]) Insert(k1 K1, k2 K2, value V) error {
	if err := c.inner.Insert(k1, k2, value); err != nil {
		return err
	}
	c.lru.Add(c.key(k1, k2), value)
	return nil
}

// Remove deletes (k1,k2) from the backing Multimap and evicts any cached
// entry.
func (c *CachedMultimap[K1, K2, V]) Remove(k1 K1, k2 K2) (V, bool) {
	v, ok := c.inner.Remove(k1, k2)
	c.lru.Remove(c.key(k1, k2))
	return v, ok
}

// Len returns the number of entries in the backing Multimap.
func (c *CachedMultimap[K1, K2, V]) Len() uint64 { return c.inner.Len() }
