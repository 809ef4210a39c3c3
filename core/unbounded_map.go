package core

import "encoding/binary"

// SlicedCodec is how a caller tells UnboundedMap to encode/decode a value
// whose byte length is not bounded at compile time, along with the chunk
// size to slice it into (spec.md §3 "UnboundedValue(V)" / "SlicedStorable"
// in the original Rust source).
type SlicedCodec[V any] struct {
	ChunkSize int
	Encode    func(V) []byte
	Decode    func([]byte) V
}

type chunkKey struct{ b []byte }

// UnboundedMap stores values of unbounded encoded size as a sequence of
// ChunkSize-byte slices inside a bounded OrderedMap, per spec.md §4.3.
type UnboundedMap[K, V any] struct {
	inner     *OrderedMap[chunkKey, []byte]
	kc        Codec[K]
	vc        SlicedCodec[V]
	prefixLen int
}

func chunkKeyPrefixLen(keyMax int) int {
	switch {
	case keyMax < 1<<8:
		return 1
	case keyMax < 1<<16:
		return 2
	default:
		return 4
	}
}

// NewUnboundedMap initialises a brand-new UnboundedMap over sm.
func NewUnboundedMap[K, V any](sm *SubMemory, kc Codec[K], vc SlicedCodec[V]) *UnboundedMap[K, V] {
	prefixLen := chunkKeyPrefixLen(kc.MaxSize)
	ck := chunkKeyCodec(kc.MaxSize, prefixLen)
	return &UnboundedMap[K, V]{
		inner:     NewOrderedMap[chunkKey, []byte](sm, ck, BytesCodec(vc.ChunkSize)),
		kc:        kc, vc: vc, prefixLen: prefixLen,
	}
}

// OpenUnboundedMap reattaches to an UnboundedMap previously created by
// NewUnboundedMap.
func OpenUnboundedMap[K, V any](sm *SubMemory, kc Codec[K], vc SlicedCodec[V]) *UnboundedMap[K, V] {
	prefixLen := chunkKeyPrefixLen(kc.MaxSize)
	ck := chunkKeyCodec(kc.MaxSize, prefixLen)
	return &UnboundedMap[K, V]{
		inner:     OpenOrderedMap[chunkKey, []byte](sm, ck, BytesCodec(vc.ChunkSize)),
		kc:        kc, vc: vc, prefixLen: prefixLen,
	}
}

func chunkKeyCodec(keyMax, prefixLen int) Codec[chunkKey] {
	return Codec[chunkKey]{
		MaxSize: prefixLen + keyMax + 2,
		Encode:  func(v chunkKey) []byte { return v.b },
		Decode:  func(b []byte) chunkKey { return chunkKey{b: append([]byte{}, b...)} },
	}
}

func (m *UnboundedMap[K, V]) makeChunkKey(k K, idx uint16) chunkKey {
	kb := m.kc.Encode(k)
	if len(kb) > m.kc.MaxSize {
		Trap("unbounded_map: encoded key exceeds declared max size %d", m.kc.MaxSize)
	}
	buf := make([]byte, m.prefixLen+m.kc.MaxSize+2)
	switch m.prefixLen {
	case 1:
		buf[0] = byte(len(kb))
	case 2:
		binary.BigEndian.PutUint16(buf[0:2], uint16(len(kb)))
	default:
		binary.BigEndian.PutUint32(buf[0:4], uint32(len(kb)))
	}
	copy(buf[m.prefixLen:], kb)
	binary.BigEndian.PutUint16(buf[m.prefixLen+m.kc.MaxSize:], idx)
	return chunkKey{b: buf}
}

func (m *UnboundedMap[K, V]) keyPrefix(ck chunkKey) []byte {
	return ck.b[:m.prefixLen+m.kc.MaxSize]
}

func (m *UnboundedMap[K, V]) decodeKeyFromChunk(ck chunkKey) K {
	var realLen int
	switch m.prefixLen {
	case 1:
		realLen = int(ck.b[0])
	case 2:
		realLen = int(binary.BigEndian.Uint16(ck.b[0:2]))
	default:
		realLen = int(binary.BigEndian.Uint32(ck.b[0:4]))
	}
	return m.kc.Decode(ck.b[m.prefixLen : m.prefixLen+realLen])
}

// Get returns the value stored under k, if present, reassembling it from
// its chunks in chunk-index order.
func (m *UnboundedMap[K, V]) Get(k K) (V, bool) {
	var zero V
	lo := m.makeChunkKey(k, 0)
	hi := m.makeChunkKey(k, 0xffff)
	it := m.inner.Range(lo, hi)
	var buf []byte
	found := false
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		buf = append(buf, e.Value...)
		found = true
	}
	if !found {
		return zero, false
	}
	return m.vc.Decode(buf), true
}

// Insert stores v under k, first removing any previously stored value so
// that a value with fewer chunks than its predecessor never leaves
// stranded chunks, per spec.md §4.3.
func (m *UnboundedMap[K, V]) Insert(k K, v V) error {
	m.Remove(k)

	data := m.vc.Encode(v)
	chunkSize := m.vc.ChunkSize
	n := (len(data) + chunkSize - 1) / chunkSize
	if n == 0 {
		n = 1 // store a single empty chunk so the key is observably present
	}
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := m.inner.Insert(m.makeChunkKey(k, uint16(i)), append([]byte{}, data[start:end]...)); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes k and all of its chunks, if present.
func (m *UnboundedMap[K, V]) Remove(k K) bool {
	lo := m.makeChunkKey(k, 0)
	hi := m.makeChunkKey(k, 0xffff)
	it := m.inner.Range(lo, hi)
	var keys []chunkKey
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, e.Key)
	}
	for _, ck := range keys {
		m.inner.Remove(ck)
	}
	return len(keys) > 0
}

// UnboundedIterator groups consecutive chunks sharing the same logical key
// into one (K,V) entry per Next() call.
type UnboundedIterator[K, V any] struct {
	m    *UnboundedMap[K, V]
	it   *Iterator[chunkKey, []byte]
	next *Entry[chunkKey, []byte] // buffered first chunk of the next group
}

// Iter returns an iterator over all logical entries in ascending key order.
func (m *UnboundedMap[K, V]) Iter() *UnboundedIterator[K, V] {
	it := m.inner.Iter()
	e, ok := it.Next()
	ui := &UnboundedIterator[K, V]{m: m, it: it}
	if ok {
		ui.next = &e
	}
	return ui
}

// Next returns the next logical (K,V) pair, or false when exhausted.
func (ui *UnboundedIterator[K, V]) Next() (K, V, bool) {
	var zeroK K
	var zeroV V
	if ui.next == nil {
		return zeroK, zeroV, false
	}
	groupPrefix := ui.m.keyPrefix(ui.next.Key)
	k := ui.m.decodeKeyFromChunk(ui.next.Key)
	var buf []byte
	buf = append(buf, ui.next.Value...)
	ui.next = nil

	for {
		e, ok := ui.it.Next()
		if !ok {
			break
		}
		if cmpBytes(ui.m.keyPrefix(e.Key), groupPrefix) != 0 {
			ui.next = &e
			break
		}
		buf = append(buf, e.Value...)
	}
	return k, ui.m.vc.Decode(buf), true
}

// IterUpperBound returns an iterator positioned at the greatest logical key
// strictly less than k, per spec.md §4.3. Implemented by locating the last
// physical chunk below ChunkKey(k,0) (which always belongs to the
// immediately preceding logical key, since chunk indices of one key are
// contiguous), then restarting a grouping iterator at that key's first
// chunk so consecutive Next() calls continue ascending normally.
func (m *UnboundedMap[K, V]) IterUpperBound(k K) *UnboundedIterator[K, V] {
	pos := m.inner.IterUpperBound(m.makeChunkKey(k, 0))
	e, ok := pos.Next()
	if !ok {
		return &UnboundedIterator[K, V]{m: m}
	}
	prevKey := m.decodeKeyFromChunk(e.Key)
	it := m.inner.IterFrom(m.makeChunkKey(prevKey, 0))
	first, ok := it.Next()
	ui := &UnboundedIterator[K, V]{m: m, it: it}
	if ok {
		ui.next = &first
	}
	return ui
}
