package core

import "testing"

func TestCellGetSet(t *testing.T) {
	rs := NewHeapRawStore()
	a := NewPageAllocator(rs, 16)
	c := NewCell[uint64](a.SubMemory(0), FixedUint64Codec(), 42)

	if got := c.Get(); got != 42 {
		t.Fatalf("initial get = %d; want 42", got)
	}
	if err := c.Set(99); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := c.Get(); got != 99 {
		t.Fatalf("get after set = %d; want 99", got)
	}
}

func TestCellReopenPreservesValue(t *testing.T) {
	rs := NewHeapRawStore()
	a := NewPageAllocator(rs, 16)
	_ = NewCell[uint64](a.SubMemory(0), FixedUint64Codec(), 7)

	c2 := OpenCell[uint64](a.SubMemory(0), FixedUint64Codec())
	if got := c2.Get(); got != 7 {
		t.Fatalf("reopened get = %d; want 7", got)
	}
}
