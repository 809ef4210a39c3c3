package core

import (
	"encoding/binary"
	"fmt"
)

// MaxOwners is the number of distinct sub-memories the allocator can
// multiplex onto one raw store (owner_id is a single byte).
const MaxOwners = 256

const (
	allocHeaderReservedPagesOff = 0
	allocHeaderEntryCountOff    = 8
	allocHeaderSize             = 16
	allocRecordSize             = 5 // 1 byte owner + 4 byte big-endian virtual page
)

// allocKey is the (owner_id, virtual_page) pair the allocation map is keyed
// by; presence of a key is itself the assignment, per spec.md's "the next
// free physical page equals the current map size plus RESERVED_PAGES".
type allocKey struct {
	owner uint8
	vpage uint32
}

// PageAllocator carves a RawStore into up to MaxOwners independent virtual
// memories. The first reservedPages pages hold the allocation map; physical
// pages are assigned to owners in the monotone order they are grown and are
// never freed, matching the host's append-only stable-memory model.
type PageAllocator struct {
	rs  RawStore
	cap uint64 // maxEntries the reserved region was sized for

	reservedPages uint64
	entryCount    uint64

	phys    map[allocKey]uint32 // (owner,vpage) -> physical page
	logical map[uint8]uint32    // owner -> logical page count
}

// NewPageAllocator initialises a brand new allocator over an empty (or
// freshly truncated-in-spirit) raw store, reserving enough space for
// maxEntries (owner,virtual_page) records. maxEntries bounds how many pages
// can ever be allocated across all owners combined; growth beyond it traps,
// per spec.md §4.1's overflow-detection requirement.
func NewPageAllocator(rs RawStore, maxEntries uint64) *PageAllocator {
	reservedBytes := uint64(allocHeaderSize) + maxEntries*allocRecordSize
	reservedPages := (reservedBytes + PageSize - 1) / PageSize
	if rs.SizePages() < reservedPages {
		if _, ok := rs.GrowPages(reservedPages - rs.SizePages()); !ok {
			Trap("allocator: cannot reserve %d pages for allocation map", reservedPages)
		}
	}
	a := &PageAllocator{
		rs:            rs,
		cap:           maxEntries,
		reservedPages: reservedPages,
		phys:          make(map[allocKey]uint32),
		logical:       make(map[uint8]uint32),
	}
	a.writeHeader()
	return a
}

// OpenPageAllocator reconstructs a PageAllocator from a raw store that was
// previously initialised by NewPageAllocator, replaying its allocation map.
func OpenPageAllocator(rs RawStore) *PageAllocator {
	if rs.SizePages() == 0 {
		Trap("allocator: cannot open allocator over an empty raw store")
	}
	hdr := make([]byte, allocHeaderSize)
	rs.Read(0, hdr)
	reservedPages := binary.BigEndian.Uint64(hdr[allocHeaderReservedPagesOff:])
	entryCount := binary.BigEndian.Uint64(hdr[allocHeaderEntryCountOff:])

	a := &PageAllocator{
		rs:            rs,
		reservedPages: reservedPages,
		entryCount:    entryCount,
		phys:          make(map[allocKey]uint32, entryCount),
		logical:       make(map[uint8]uint32),
	}
	a.cap = (reservedPages*PageSize - allocHeaderSize) / allocRecordSize

	if entryCount > 0 {
		raw := make([]byte, entryCount*allocRecordSize)
		rs.Read(allocHeaderSize, raw)
		for i := uint64(0); i < entryCount; i++ {
			rec := raw[i*allocRecordSize : (i+1)*allocRecordSize]
			owner := rec[0]
			vpage := binary.BigEndian.Uint32(rec[1:])
			a.phys[allocKey{owner, vpage}] = uint32(reservedPages) + uint32(i)
			if vpage+1 > a.logical[owner] {
				a.logical[owner] = vpage + 1
			}
		}
	}
	return a
}

func (a *PageAllocator) writeHeader() {
	hdr := make([]byte, allocHeaderSize)
	binary.BigEndian.PutUint64(hdr[allocHeaderReservedPagesOff:], a.reservedPages)
	binary.BigEndian.PutUint64(hdr[allocHeaderEntryCountOff:], a.entryCount)
	a.rs.Write(0, hdr)
}

// growOwner allocates delta new physical pages for owner, appending them to
// the allocation map and growing the raw store's data region. Atomic: on
// failure, neither the map nor the raw store size changes.
func (a *PageAllocator) growOwner(owner uint8, delta uint32) (priorLogical uint32, err error) {
	prior := a.logical[owner]
	if delta == 0 {
		return prior, nil
	}
	if a.entryCount+uint64(delta) > a.cap {
		Trap("allocator: allocation map exhausted (cap %d entries)", a.cap)
	}

	if _, ok := a.rs.GrowPages(uint64(delta)); !ok {
		return prior, fmt.Errorf("%w: raw store cannot grow by %d pages", ErrMemory, delta)
	}

	records := make([]byte, int(delta)*allocRecordSize)
	for i := uint32(0); i < delta; i++ {
		vpage := prior + i
		physPage := uint32(a.reservedPages) + uint32(a.entryCount) + i
		a.phys[allocKey{owner, vpage}] = physPage
		off := int(i) * allocRecordSize
		records[off] = owner
		binary.BigEndian.PutUint32(records[off+1:], vpage)
	}
	a.rs.Write(allocHeaderSize+a.entryCount*allocRecordSize, records)
	a.entryCount += uint64(delta)
	a.logical[owner] = prior + delta
	a.writeHeader()
	return prior, nil
}

func (a *PageAllocator) physicalPage(owner uint8, vpage uint32) (uint32, bool) {
	pp, ok := a.phys[allocKey{owner, vpage}]
	return pp, ok
}

// SubMemory returns the virtual memory belonging to owner, creating it (at
// zero logical pages) if it has never been grown before.
func (a *PageAllocator) SubMemory(owner uint8) *SubMemory {
	return &SubMemory{alloc: a, owner: owner}
}

// SubMemory is a virtual byte-addressable region multiplexed onto the
// backing RawStore by a PageAllocator. owner_id identifies which sub-memory
// this is within the shared store.
type SubMemory struct {
	alloc *PageAllocator
	owner uint8
}

// Owner returns this sub-memory's owner id.
func (s *SubMemory) Owner() uint8 { return s.owner }

// LogicalPages returns how many logical pages this sub-memory has been
// grown to.
func (s *SubMemory) LogicalPages() uint32 {
	return s.alloc.logical[s.owner]
}

// Grow attempts to grow this sub-memory by deltaPages logical pages.
// Returns the prior logical size, or an error if the underlying raw store
// could not grow.
func (s *SubMemory) Grow(deltaPages uint32) (uint32, error) {
	return s.alloc.growOwner(s.owner, deltaPages)
}

// EnsureBytes grows the sub-memory (if needed) so that at least n bytes are
// addressable from offset 0.
func (s *SubMemory) EnsureBytes(n uint64) error {
	needPages := uint32((n + PageSize - 1) / PageSize)
	if needPages <= s.LogicalPages() {
		return nil
	}
	_, err := s.Grow(needPages - s.LogicalPages())
	return err
}

// Read reads len(buf) bytes from logical offset off. Traps if any spanned
// logical page has not been allocated.
func (s *SubMemory) Read(off uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	s.forEachPage(off, uint64(len(buf)), func(physOff uint64, chunk []byte) {
		s.alloc.rs.Read(physOff, chunk)
	}, buf)
}

// Write writes buf to logical offset off. Traps if any spanned logical page
// has not been allocated.
func (s *SubMemory) Write(off uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	s.forEachPage(off, uint64(len(buf)), func(physOff uint64, chunk []byte) {
		s.alloc.rs.Write(physOff, chunk)
	}, buf)
}

// forEachPage splits [off,off+n) into per-logical-page spans, translating
// each to a physical offset and invoking fn with the corresponding slice of
// buf (read: destination; write: source).
func (s *SubMemory) forEachPage(off, n uint64, fn func(physOff uint64, chunk []byte), buf []byte) {
	remaining := n
	bufOff := uint64(0)
	cur := off
	for remaining > 0 {
		vpage := uint32(cur / PageSize)
		pageOff := cur % PageSize
		spanLen := PageSize - pageOff
		if spanLen > remaining {
			spanLen = remaining
		}
		pp, ok := s.alloc.physicalPage(s.owner, vpage)
		if !ok {
			Trap("submemory: owner %d logical page %d not allocated", s.owner, vpage)
		}
		physOff := uint64(pp)*PageSize + pageOff
		fn(physOff, buf[bufOff:bufOff+spanLen])
		cur += spanLen
		bufOff += spanLen
		remaining -= spanLen
	}
}
