package core

import (
	"encoding/binary"
	"fmt"
)

const (
	cellMagic      = 0x43454c4c // "CELL"
	cellHeaderSize = 8
)

// Cell is a singleton holding one T. Writes replace the previous value
// atomically from the user's perspective, since the host serialises message
// execution (spec.md §3).
type Cell[T any] struct {
	sm *SubMemory
	c  Codec[T]
}

// NewCell initialises a brand-new Cell over sm holding initial.
func NewCell[T any](sm *SubMemory, c Codec[T], initial T) *Cell[T] {
	if sm.LogicalPages() != 0 {
		Trap("cell: sub-memory %d already initialised", sm.Owner())
	}
	cell := &Cell[T]{sm: sm, c: c}
	if err := sm.EnsureBytes(uint64(cellHeaderSize) + uint64(c.MaxSize)); err != nil {
		Trap("cell: cannot allocate: %v", err)
	}
	if err := cell.Set(initial); err != nil {
		Trap("cell: initial value: %v", err)
	}
	return cell
}

// OpenCell reattaches to a Cell previously created by NewCell.
func OpenCell[T any](sm *SubMemory, c Codec[T]) *Cell[T] {
	hdr := make([]byte, 4)
	sm.Read(0, hdr)
	if binary.BigEndian.Uint32(hdr) != cellMagic {
		Trap("cell: bad magic, sub-memory %d does not hold a Cell", sm.Owner())
	}
	return &Cell[T]{sm: sm, c: c}
}

// Get reads the current value.
func (cell *Cell[T]) Get() T {
	buf := make([]byte, cell.c.MaxSize)
	cell.sm.Read(cellHeaderSize, buf)
	return cell.c.Decode(buf)
}

// Set replaces the current value.
func (cell *Cell[T]) Set(val T) error {
	b := cell.c.Encode(val)
	if len(b) > cell.c.MaxSize {
		return fmt.Errorf("%w: value", ErrValueTooLarge)
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, cellMagic)
	cell.sm.Write(0, hdr)
	buf := make([]byte, cell.c.MaxSize)
	copy(buf, b)
	cell.sm.Write(cellHeaderSize, buf)
	return nil
}
