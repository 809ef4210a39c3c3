package corelog

import (
	"testing"

	"canisdk/core"
)

func newTestRingSink(t *testing.T, capacity uint64) *RingSink {
	t.Helper()
	rs := core.NewHeapRawStore()
	a := core.NewPageAllocator(rs, 256)
	return NewRingSink(a.SubMemory(0), a.SubMemory(1), 128, capacity)
}

func TestRingSinkPushAndPage(t *testing.T) {
	s := newTestRingSink(t, 10)
	s.Push(Record{TimestampNanos: 1, Level: LevelInfo, Target: "a", Message: "first"})
	s.Push(Record{TimestampNanos: 2, Level: LevelWarn, Target: "b", Message: "second"})

	if s.Len() != 2 {
		t.Fatalf("len = %d; want 2", s.Len())
	}
	page := s.Page(0, 10)
	if len(page) != 2 || page[0].Message != "first" || page[1].Message != "second" {
		t.Fatalf("page = %+v", page)
	}
}

func TestRingSinkPageOffsetBeyondLenReturnsEmpty(t *testing.T) {
	s := newTestRingSink(t, 10)
	s.Push(Record{Message: "only"})
	if page := s.Page(5, 10); len(page) != 0 {
		t.Fatalf("page = %+v; want empty", page)
	}
}

func TestRingSinkOverflowsOldestRecord(t *testing.T) {
	s := newTestRingSink(t, 2)
	s.Push(Record{Message: "one"})
	s.Push(Record{Message: "two"})
	s.Push(Record{Message: "three"}) // evicts "one"

	page := s.Page(0, 10)
	if len(page) != 2 || page[0].Message != "two" || page[1].Message != "three" {
		t.Fatalf("page = %+v", page)
	}
}
