package core

// Multimap is a (K1,K2) -> V map whose composite key is the concatenation
// of K1 and K2's fixed-size encodings, per spec.md §3. Range-by-K1 is a
// prefix scan on the composite key. Both K1 and K2 must be fixed-size: the
// codecs passed in must always produce exactly Codec.MaxSize bytes, which
// Multimap asserts on every insert (spec.md's §9 Open Question about the
// multimap's prefix width is resolved this way — a codec whose encoding is
// ever shorter than its declared MaxSize would make K1 prefixes ambiguous,
// so canisdk traps rather than silently mis-scanning).
type Multimap[K1, K2, V any] struct {
	inner *OrderedMap[compositeKey, V]
	k1c   Codec[K1]
	k2c   Codec[K2]
}

type compositeKey struct {
	b []byte
}

// NewMultimap initialises a brand-new Multimap over sm.
func NewMultimap[K1, K2, V any](sm *SubMemory, k1c Codec[K1], k2c Codec[K2], vc Codec[V]) *Multimap[K1, K2, V] {
	ck := compositeCodec(k1c, k2c)
	return &Multimap[K1, K2, V]{
		inner: NewOrderedMap[compositeKey, V](sm, ck, vc),
		k1c:   k1c, k2c: k2c,
	}
}

// OpenMultimap reattaches to a Multimap previously created by NewMultimap.
func OpenMultimap[K1, K2, V any](sm *SubMemory, k1c Codec[K1], k2c Codec[K2], vc Codec[V]) *Multimap[K1, K2, V] {
	ck := compositeCodec(k1c, k2c)
	return &Multimap[K1, K2, V]{
		inner: OpenOrderedMap[compositeKey, V](sm, ck, vc),
		k1c:   k1c, k2c: k2c,
	}
}

func compositeCodec[K1, K2 any](k1c Codec[K1], k2c Codec[K2]) Codec[compositeKey] {
	return Codec[compositeKey]{
		MaxSize: k1c.MaxSize + k2c.MaxSize,
		Encode:  func(v compositeKey) []byte { return v.b },
		Decode:  func(b []byte) compositeKey { return compositeKey{b: append([]byte{}, b...)} },
	}
}

func (m *Multimap[K1, K2, V]) encode(k1 K1, k2 K2) compositeKey {
	b1 := m.k1c.Encode(k1)
	if len(b1) != m.k1c.MaxSize {
		Trap("multimap: K1 encoding length %d != declared MaxSize %d (not a fixed-size codec)", len(b1), m.k1c.MaxSize)
	}
	b2 := m.k2c.Encode(k2)
	if len(b2) != m.k2c.MaxSize {
		Trap("multimap: K2 encoding length %d != declared MaxSize %d (not a fixed-size codec)", len(b2), m.k2c.MaxSize)
	}
	buf := make([]byte, 0, len(b1)+len(b2))
	buf = append(buf, b1...)
	buf = append(buf, b2...)
	return compositeKey{b: buf}
}

// Insert stores value under (k1,k2).
func (m *Multimap[K1, K2, V]) Insert(k1 K1, k2 K2, value V) error {
	return m.inner.Insert(m.encode(k1, k2), value)
}

// Get returns the value stored under (k1,k2), if present.
func (m *Multimap[K1, K2, V]) Get(k1 K1, k2 K2) (V, bool) {
	return m.inner.Get(m.encode(k1, k2))
}

// Remove deletes (k1,k2), if present.
func (m *Multimap[K1, K2, V]) Remove(k1 K1, k2 K2) (V, bool) {
	return m.inner.Remove(m.encode(k1, k2))
}

// Len reports the total number of stored entries across all K1 values.
func (m *Multimap[K1, K2, V]) Len() uint64 { return m.inner.Len() }

// RangeByK1 returns every (K2,V) pair stored under k1, in K2's byte order,
// via a prefix scan over the composite key.
func (m *Multimap[K1, K2, V]) RangeByK1(k1 K1) []Entry[K2, V] {
	b1 := m.k1c.Encode(k1)
	if len(b1) != m.k1c.MaxSize {
		Trap("multimap: K1 encoding length %d != declared MaxSize %d", len(b1), m.k1c.MaxSize)
	}
	lo := compositeKey{b: append(append([]byte{}, b1...), zeros(m.k2c.MaxSize)...)}
	hi := compositeKey{b: append(append([]byte{}, b1...), maxBytes(m.k2c.MaxSize)...)}

	var out []Entry[K2, V]
	it := m.inner.Range(lo, hi)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		k2b := e.Key.b[len(b1):]
		out = append(out, Entry[K2, V]{Key: m.k2c.Decode(k2b), Value: e.Value})
	}
	return out
}

// RemoveAllByK1 removes every entry stored under k1, returning the count
// removed. Implemented as a prefix-range scan followed by per-entry
// removal, per spec.md §3.
func (m *Multimap[K1, K2, V]) RemoveAllByK1(k1 K1) int {
	entries := m.RangeByK1(k1)
	for _, e := range entries {
		m.Remove(k1, e.Key)
	}
	return len(entries)
}

func zeros(n int) []byte { return make([]byte, n) }

func maxBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xff
	}
	return b
}
