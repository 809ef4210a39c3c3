package core

import (
	"encoding/binary"
	"fmt"
)

// nodeSize is the fixed byte size of every B+tree node (leaf or internal).
// Containers address nodes by id within their sub-memory's byte-addressable
// space rather than by raw allocator page, so nodeSize need not equal
// PageSize; using PageSize keeps one node's working set close to one
// physical page in the common case, per spec.md §4.2.
const nodeSize = PageSize

const noNode uint32 = 0xFFFFFFFF

const (
	omMagic           = 0x4f4d4254 // "OMBT"
	omHeaderSize      = 64
	omHdrMagicOff     = 0
	omHdrVersionOff   = 4
	omHdrRootOff      = 8
	omHdrNextNodeOff  = 12
	omHdrCountOff     = 16
	omHdrLeafOrdOff   = 24
	omHdrInternOrdOff = 28
	omHdrKeyMaxOff    = 32
	omHdrValMaxOff    = 36

	leafHeaderSize     = 1 + 2 + 4 // isLeaf, numKeys, nextLeaf
	internalHeaderSize = 1 + 2     // isLeaf, numKeys
)

// OrderedMap is a disk-resident B+tree map keyed by the lexicographic byte
// order of K's encoding, generic over element encodings whose maximum size
// is known up front via a Codec (spec.md §3 "OrderedMap<K,V>").
type OrderedMap[K, V any] struct {
	sm *SubMemory
	kc Codec[K]
	vc Codec[V]

	rootID       uint32
	nextNodeID   uint32
	count        uint64
	leafOrder    int
	internalOrder int
}

func computeOrders(keyMax, valMax int) (leafOrder, internalOrder int) {
	leafOrder = (nodeSize - leafHeaderSize) / (keyMax + valMax)
	if leafOrder < 4 {
		leafOrder = 4
	}
	internalOrder = (nodeSize - internalHeaderSize) / (keyMax + 4)
	if internalOrder < 3 {
		internalOrder = 3
	}
	return
}

// NewOrderedMap initialises a brand-new, empty OrderedMap over sm. sm must
// not already hold a container (LogicalPages() == 0).
func NewOrderedMap[K, V any](sm *SubMemory, kc Codec[K], vc Codec[V]) *OrderedMap[K, V] {
	if sm.LogicalPages() != 0 {
		Trap("ordered_map: sub-memory %d already initialised", sm.Owner())
	}
	leafOrder, internalOrder := computeOrders(kc.MaxSize, vc.MaxSize)
	m := &OrderedMap[K, V]{
		sm: sm, kc: kc, vc: vc,
		rootID: 0, nextNodeID: 1, count: 0,
		leafOrder: leafOrder, internalOrder: internalOrder,
	}
	if err := sm.EnsureBytes(uint64(omHeaderSize) + nodeSize); err != nil {
		Trap("ordered_map: cannot allocate initial node: %v", err)
	}
	m.writeHeader()
	m.writeLeaf(0, &leafNode{nextLeaf: noNode})
	return m
}

// OpenOrderedMap reattaches to a container previously created by
// NewOrderedMap.
func OpenOrderedMap[K, V any](sm *SubMemory, kc Codec[K], vc Codec[V]) *OrderedMap[K, V] {
	hdr := make([]byte, omHeaderSize)
	sm.Read(0, hdr)
	if binary.BigEndian.Uint32(hdr[omHdrMagicOff:]) != omMagic {
		Trap("ordered_map: bad magic, sub-memory %d does not hold an OrderedMap", sm.Owner())
	}
	m := &OrderedMap[K, V]{
		sm: sm, kc: kc, vc: vc,
		rootID:        binary.BigEndian.Uint32(hdr[omHdrRootOff:]),
		nextNodeID:    binary.BigEndian.Uint32(hdr[omHdrNextNodeOff:]),
		count:         binary.BigEndian.Uint64(hdr[omHdrCountOff:]),
		leafOrder:     int(binary.BigEndian.Uint32(hdr[omHdrLeafOrdOff:])),
		internalOrder: int(binary.BigEndian.Uint32(hdr[omHdrInternOrdOff:])),
	}
	return m
}

func (m *OrderedMap[K, V]) writeHeader() {
	hdr := make([]byte, omHeaderSize)
	binary.BigEndian.PutUint32(hdr[omHdrMagicOff:], omMagic)
	binary.BigEndian.PutUint32(hdr[omHdrVersionOff:], 1)
	binary.BigEndian.PutUint32(hdr[omHdrRootOff:], m.rootID)
	binary.BigEndian.PutUint32(hdr[omHdrNextNodeOff:], m.nextNodeID)
	binary.BigEndian.PutUint64(hdr[omHdrCountOff:], m.count)
	binary.BigEndian.PutUint32(hdr[omHdrLeafOrdOff:], uint32(m.leafOrder))
	binary.BigEndian.PutUint32(hdr[omHdrInternOrdOff:], uint32(m.internalOrder))
	binary.BigEndian.PutUint32(hdr[omHdrKeyMaxOff:], uint32(m.kc.MaxSize))
	binary.BigEndian.PutUint32(hdr[omHdrValMaxOff:], uint32(m.vc.MaxSize))
	m.sm.Write(0, hdr)
}

func (m *OrderedMap[K, V]) nodeOffset(id uint32) uint64 {
	return uint64(omHeaderSize) + uint64(id)*nodeSize
}

func (m *OrderedMap[K, V]) allocNode() uint32 {
	id := m.nextNodeID
	m.nextNodeID++
	if err := m.sm.EnsureBytes(m.nodeOffset(id) + nodeSize); err != nil {
		Trap("ordered_map: cannot grow for node %d: %v", id, err)
	}
	return id
}

// --- node encoding -------------------------------------------------------

type leafNode struct {
	keys     [][]byte
	vals     [][]byte
	nextLeaf uint32
}

type internalNode struct {
	keys     [][]byte
	children []uint32
}

func (m *OrderedMap[K, V]) readIsLeaf(id uint32) bool {
	var b [1]byte
	m.sm.Read(m.nodeOffset(id), b[:])
	return b[0] == 1
}

func (m *OrderedMap[K, V]) readLeaf(id uint32) *leafNode {
	buf := make([]byte, leafHeaderSize+m.leafOrder*(m.kc.MaxSize+m.vc.MaxSize))
	m.sm.Read(m.nodeOffset(id), buf)
	numKeys := int(binary.BigEndian.Uint16(buf[1:3]))
	next := binary.BigEndian.Uint32(buf[3:7])
	n := &leafNode{nextLeaf: next}
	off := leafHeaderSize
	entry := m.kc.MaxSize + m.vc.MaxSize
	for i := 0; i < numKeys; i++ {
		k := make([]byte, m.kc.MaxSize)
		v := make([]byte, m.vc.MaxSize)
		copy(k, buf[off:off+m.kc.MaxSize])
		copy(v, buf[off+m.kc.MaxSize:off+entry])
		n.keys = append(n.keys, k)
		n.vals = append(n.vals, v)
		off += entry
	}
	return n
}

func (m *OrderedMap[K, V]) writeLeaf(id uint32, n *leafNode) {
	buf := make([]byte, leafHeaderSize+m.leafOrder*(m.kc.MaxSize+m.vc.MaxSize))
	buf[0] = 1
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(n.keys)))
	binary.BigEndian.PutUint32(buf[3:7], n.nextLeaf)
	off := leafHeaderSize
	entry := m.kc.MaxSize + m.vc.MaxSize
	for i := range n.keys {
		copy(buf[off:off+m.kc.MaxSize], n.keys[i])
		copy(buf[off+m.kc.MaxSize:off+entry], n.vals[i])
		off += entry
	}
	m.sm.Write(m.nodeOffset(id), buf)
}

func (m *OrderedMap[K, V]) readInternal(id uint32) *internalNode {
	buf := make([]byte, internalHeaderSize+(m.internalOrder-1)*m.kc.MaxSize+m.internalOrder*4)
	m.sm.Read(m.nodeOffset(id), buf)
	numKeys := int(binary.BigEndian.Uint16(buf[1:3]))
	n := &internalNode{}
	off := internalHeaderSize
	for i := 0; i < numKeys; i++ {
		k := make([]byte, m.kc.MaxSize)
		copy(k, buf[off:off+m.kc.MaxSize])
		n.keys = append(n.keys, k)
		off += m.kc.MaxSize
	}
	childOff := internalHeaderSize + (m.internalOrder-1)*m.kc.MaxSize
	for i := 0; i <= numKeys; i++ {
		n.children = append(n.children, binary.BigEndian.Uint32(buf[childOff+i*4:]))
	}
	return n
}

func (m *OrderedMap[K, V]) writeInternal(id uint32, n *internalNode) {
	buf := make([]byte, internalHeaderSize+(m.internalOrder-1)*m.kc.MaxSize+m.internalOrder*4)
	buf[0] = 0
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(n.keys)))
	off := internalHeaderSize
	for i := range n.keys {
		copy(buf[off:off+m.kc.MaxSize], n.keys[i])
		off += m.kc.MaxSize
	}
	childOff := internalHeaderSize + (m.internalOrder-1)*m.kc.MaxSize
	for i, c := range n.children {
		binary.BigEndian.PutUint32(buf[childOff+i*4:], c)
	}
	m.sm.Write(m.nodeOffset(id), buf)
}

// --- comparisons ----------------------------------------------------------

func cmpBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// --- search ----------------------------------------------------------------

// findLeafPath walks from the root to the leaf that would contain key,
// recording the (internal node id, child index taken) path for use by
// insert's split propagation.
func (m *OrderedMap[K, V]) findLeafPath(key []byte) (leafID uint32, path []uint32, idxPath []int) {
	id := m.rootID
	for !m.readIsLeaf(id) {
		n := m.readInternal(id)
		i := 0
		for i < len(n.keys) && cmpBytes(key, n.keys[i]) >= 0 {
			i++
		}
		path = append(path, id)
		idxPath = append(idxPath, i)
		id = n.children[i]
	}
	return id, path, idxPath
}

// Len reports the number of entries stored.
func (m *OrderedMap[K, V]) Len() uint64 { return m.count }

// Get returns the value stored under key, if present.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	var zero V
	kb := m.encodeKey(key)
	leafID, _, _ := m.findLeafPath(kb)
	leaf := m.readLeaf(leafID)
	for i, k := range leaf.keys {
		if cmpBytes(k, kb) == 0 {
			return m.vc.Decode(leaf.vals[i]), true
		}
	}
	return zero, false
}

func (m *OrderedMap[K, V]) encodeKey(k K) []byte {
	b := m.kc.Encode(k)
	if len(b) > m.kc.MaxSize {
		Trap("ordered_map: encoded key exceeds declared max size %d", m.kc.MaxSize)
	}
	padded := make([]byte, m.kc.MaxSize)
	copy(padded, b)
	return padded
}

// Insert stores value under key, replacing any previous value. Returns
// ErrValueTooLarge instead of trapping if either encoding exceeds its
// declared bound.
func (m *OrderedMap[K, V]) Insert(key K, value V) error {
	kb0 := m.kc.Encode(key)
	if len(kb0) > m.kc.MaxSize {
		return fmt.Errorf("%w: key", ErrValueTooLarge)
	}
	vb0 := m.vc.Encode(value)
	if len(vb0) > m.vc.MaxSize {
		return fmt.Errorf("%w: value", ErrValueTooLarge)
	}
	kb := make([]byte, m.kc.MaxSize)
	copy(kb, kb0)
	vb := make([]byte, m.vc.MaxSize)
	copy(vb, vb0)

	leafID, path, idxPath := m.findLeafPath(kb)
	leaf := m.readLeaf(leafID)

	pos := 0
	for pos < len(leaf.keys) && cmpBytes(leaf.keys[pos], kb) < 0 {
		pos++
	}
	if pos < len(leaf.keys) && cmpBytes(leaf.keys[pos], kb) == 0 {
		leaf.vals[pos] = vb
		m.writeLeaf(leafID, leaf)
		return nil
	}
	leaf.keys = append(leaf.keys, nil)
	leaf.vals = append(leaf.vals, nil)
	copy(leaf.keys[pos+1:], leaf.keys[pos:])
	copy(leaf.vals[pos+1:], leaf.vals[pos:])
	leaf.keys[pos] = kb
	leaf.vals[pos] = vb
	m.count++

	if len(leaf.keys) <= m.leafOrder {
		m.writeLeaf(leafID, leaf)
		m.writeHeader()
		return nil
	}

	// Split the overflowing leaf.
	mid := len(leaf.keys) / 2
	rightID := m.allocNode()
	right := &leafNode{
		keys:     append([][]byte{}, leaf.keys[mid:]...),
		vals:     append([][]byte{}, leaf.vals[mid:]...),
		nextLeaf: leaf.nextLeaf,
	}
	left := &leafNode{
		keys:     append([][]byte{}, leaf.keys[:mid]...),
		vals:     append([][]byte{}, leaf.vals[:mid]...),
		nextLeaf: rightID,
	}
	m.writeLeaf(leafID, left)
	m.writeLeaf(rightID, right)

	m.propagateSplit(path, idxPath, right.keys[0], rightID)
	m.writeHeader()
	return nil
}

// propagateSplit inserts separatorKey/rightID into the parent named by the
// tail of path/idxPath, splitting internal nodes as needed and growing the
// tree by one level if the root itself splits.
func (m *OrderedMap[K, V]) propagateSplit(path []uint32, idxPath []int, separator []byte, rightChild uint32) {
	if len(path) == 0 {
		// The root (a leaf) split: create a new internal root.
		newRoot := m.allocNode()
		m.writeInternal(newRoot, &internalNode{
			keys:     [][]byte{separator},
			children: []uint32{m.rootID, rightChild},
		})
		m.rootID = newRoot
		return
	}

	parentID := path[len(path)-1]
	childIdx := idxPath[len(idxPath)-1]
	parent := m.readInternal(parentID)

	parent.keys = append(parent.keys, nil)
	copy(parent.keys[childIdx+1:], parent.keys[childIdx:])
	parent.keys[childIdx] = separator

	parent.children = append(parent.children, 0)
	copy(parent.children[childIdx+2:], parent.children[childIdx+1:])
	parent.children[childIdx+1] = rightChild

	if len(parent.keys) <= m.internalOrder-1 {
		m.writeInternal(parentID, parent)
		return
	}

	mid := len(parent.keys) / 2
	upSeparator := parent.keys[mid]
	rightID := m.allocNode()
	right := &internalNode{
		keys:     append([][]byte{}, parent.keys[mid+1:]...),
		children: append([]uint32{}, parent.children[mid+1:]...),
	}
	left := &internalNode{
		keys:     append([][]byte{}, parent.keys[:mid]...),
		children: append([]uint32{}, parent.children[:mid+1]...),
	}
	m.writeInternal(parentID, left)
	m.writeInternal(rightID, right)

	m.propagateSplit(path[:len(path)-1], idxPath[:len(idxPath)-1], upSeparator, rightID)
}

// Remove deletes key, if present, returning the removed value.
func (m *OrderedMap[K, V]) Remove(key K) (V, bool) {
	var zero V
	kb := m.encodeKey(key)
	leafID, _, _ := m.findLeafPath(kb)
	leaf := m.readLeaf(leafID)
	for i, k := range leaf.keys {
		if cmpBytes(k, kb) == 0 {
			v := m.vc.Decode(leaf.vals[i])
			leaf.keys = append(leaf.keys[:i], leaf.keys[i+1:]...)
			leaf.vals = append(leaf.vals[:i], leaf.vals[i+1:]...)
			m.writeLeaf(leafID, leaf)
			m.count--
			m.writeHeader()
			return v, true
		}
	}
	return zero, false
}

// leftmostLeaf returns the id of the first (lowest-keyed) leaf.
func (m *OrderedMap[K, V]) leftmostLeaf() uint32 {
	id := m.rootID
	for !m.readIsLeaf(id) {
		n := m.readInternal(id)
		id = n.children[0]
	}
	return id
}

// Entry is one decoded (key, value) pair produced by iteration.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Iterator is a forward cursor over an OrderedMap's entries in ascending
// key order.
type Iterator[K, V any] struct {
	m       *OrderedMap[K, V]
	leaf    *leafNode
	idx     int
	done    bool
	hi      []byte // inclusive upper bound in encoded form, nil = unbounded
}

// Next advances the iterator, returning the next entry or false when
// exhausted.
func (it *Iterator[K, V]) Next() (Entry[K, V], bool) {
	var zero Entry[K, V]
	for {
		if it.done {
			return zero, false
		}
		if it.leaf == nil || it.idx >= len(it.leaf.keys) {
			if it.leaf != nil && it.leaf.nextLeaf != noNode {
				it.leaf = it.m.readLeaf(it.leaf.nextLeaf)
				it.idx = 0
				continue
			}
			it.done = true
			return zero, false
		}
		k := it.leaf.keys[it.idx]
		if it.hi != nil && cmpBytes(k, it.hi) > 0 {
			it.done = true
			return zero, false
		}
		e := Entry[K, V]{Key: it.m.kc.Decode(k), Value: it.m.vc.Decode(it.leaf.vals[it.idx])}
		it.idx++
		return e, true
	}
}

// Iter returns an iterator over all entries in ascending key order.
func (m *OrderedMap[K, V]) Iter() *Iterator[K, V] {
	if m.count == 0 {
		return &Iterator[K, V]{done: true}
	}
	id := m.leftmostLeaf()
	return &Iterator[K, V]{m: m, leaf: m.readLeaf(id)}
}

// Range returns an iterator over entries with key in [lo, hi] inclusive.
func (m *OrderedMap[K, V]) Range(lo, hi K) *Iterator[K, V] {
	lob := m.encodeKey(lo)
	hib := m.encodeKey(hi)
	leafID, _, _ := m.findLeafPath(lob)
	leaf := m.readLeaf(leafID)
	idx := 0
	for idx < len(leaf.keys) && cmpBytes(leaf.keys[idx], lob) < 0 {
		idx++
	}
	return &Iterator[K, V]{m: m, leaf: leaf, idx: idx, hi: hib}
}

// IterFrom returns an iterator over all entries with key >= lo, with no
// upper bound.
func (m *OrderedMap[K, V]) IterFrom(lo K) *Iterator[K, V] {
	lob := m.encodeKey(lo)
	leafID, _, _ := m.findLeafPath(lob)
	leaf := m.readLeaf(leafID)
	idx := 0
	for idx < len(leaf.keys) && cmpBytes(leaf.keys[idx], lob) < 0 {
		idx++
	}
	return &Iterator[K, V]{m: m, leaf: leaf, idx: idx}
}

// IterUpperBound returns an iterator positioned at the greatest key
// strictly less than key, per spec.md §4.3 (used by UnboundedMap). This
// walks the ordered iteration forward from the start, which is O(n) rather
// than a true backward-linked-leaf lookup.
func (m *OrderedMap[K, V]) IterUpperBound(key K) *Iterator[K, V] {
	target := m.encodeKey(key)
	var lastLeaf *leafNode
	lastIdx := -1
	scan := m.Iter()
	for {
		if scan.leaf == nil || scan.idx >= len(scan.leaf.keys) {
			if scan.leaf != nil && scan.leaf.nextLeaf != noNode {
				scan.leaf = m.readLeaf(scan.leaf.nextLeaf)
				scan.idx = 0
				continue
			}
			break
		}
		if cmpBytes(scan.leaf.keys[scan.idx], target) >= 0 {
			break
		}
		lastLeaf = scan.leaf
		lastIdx = scan.idx
		scan.idx++
	}
	if lastLeaf == nil {
		return &Iterator[K, V]{done: true}
	}
	return &Iterator[K, V]{m: m, leaf: lastLeaf, idx: lastIdx}
}
