package core

import "testing"

func newTestOrderedMap(t *testing.T) *OrderedMap[uint32, uint64] {
	t.Helper()
	rs := NewHeapRawStore()
	a := NewPageAllocator(rs, 256)
	return NewOrderedMap[uint32, uint64](a.SubMemory(0), FixedUint32Codec(), FixedUint64Codec())
}

func TestOrderedMapInsertGet(t *testing.T) {
	m := newTestOrderedMap(t)
	if err := m.Insert(1, 100); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v, ok := m.Get(1); !ok || v != 100 {
		t.Fatalf("get(1) = %d,%v; want 100,true", v, ok)
	}
	if _, ok := m.Get(2); ok {
		t.Fatalf("get(2) unexpectedly found")
	}
}

func TestOrderedMapNoDuplicateKeys(t *testing.T) {
	m := newTestOrderedMap(t)
	if err := m.Insert(5, 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Insert(5, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d; want 1 after overwriting the same key", m.Len())
	}
	if v, _ := m.Get(5); v != 2 {
		t.Fatalf("get(5) = %d; want 2 (last write wins)", v)
	}
}

func TestOrderedMapIterationIsOrdered(t *testing.T) {
	m := newTestOrderedMap(t)
	keys := []uint32{50, 10, 90, 30, 70, 20, 60, 40, 80}
	for _, k := range keys {
		if err := m.Insert(k, uint64(k)*2); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	it := m.Iter()
	var last uint32
	count := 0
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if count > 0 && e.Key <= last {
			t.Fatalf("iteration out of order: %d after %d", e.Key, last)
		}
		if e.Value != uint64(e.Key)*2 {
			t.Fatalf("key %d has value %d; want %d", e.Key, e.Value, e.Key*2)
		}
		last = e.Key
		count++
	}
	if count != len(keys) {
		t.Fatalf("iterated %d entries; want %d", count, len(keys))
	}
}

func TestOrderedMapSplitsAcrossManyEntries(t *testing.T) {
	m := newTestOrderedMap(t)
	const n = 12000 // over twice a uint32/uint64 leaf's 5460 entries
	for i := uint32(0); i < n; i++ {
		if err := m.Insert(i, uint64(i)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if m.Len() != n {
		t.Fatalf("len = %d; want %d", m.Len(), n)
	}
	for i := uint32(0); i < n; i++ {
		v, ok := m.Get(i)
		if !ok || v != uint64(i) {
			t.Fatalf("get(%d) = %d,%v; want %d,true", i, v, ok, i)
		}
	}
}

func TestOrderedMapRemove(t *testing.T) {
	m := newTestOrderedMap(t)
	for i := uint32(0); i < 10; i++ {
		if err := m.Insert(i, uint64(i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if v, ok := m.Remove(5); !ok || v != 5 {
		t.Fatalf("remove(5) = %d,%v; want 5,true", v, ok)
	}
	if _, ok := m.Get(5); ok {
		t.Fatalf("key 5 still present after remove")
	}
	if m.Len() != 9 {
		t.Fatalf("len = %d; want 9 after one remove", m.Len())
	}
	if _, ok := m.Remove(5); ok {
		t.Fatalf("second remove(5) unexpectedly succeeded")
	}
}

func TestOrderedMapRangeAndIterFrom(t *testing.T) {
	m := newTestOrderedMap(t)
	for i := uint32(0); i < 20; i += 2 {
		if err := m.Insert(i, uint64(i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	it := m.Range(4, 12)
	var got []uint32
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, e.Key)
	}
	want := []uint32{4, 6, 8, 10}
	if len(got) != len(want) {
		t.Fatalf("range returned %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range[%d] = %d; want %d", i, got[i], want[i])
		}
	}

	fromIt := m.IterFrom(10)
	first, ok := fromIt.Next()
	if !ok || first.Key != 10 {
		t.Fatalf("IterFrom(10) first = %d,%v; want 10,true", first.Key, ok)
	}
}

func TestOrderedMapIterUpperBound(t *testing.T) {
	m := newTestOrderedMap(t)
	for _, k := range []uint32{10, 20, 30, 40} {
		if err := m.Insert(k, uint64(k)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	it := m.IterUpperBound(30)
	e, ok := it.Next()
	if !ok || e.Key != 20 {
		t.Fatalf("IterUpperBound(30) first = %d,%v; want 20,true", e.Key, ok)
	}
}

func TestOrderedMapValueTooLarge(t *testing.T) {
	rs := NewHeapRawStore()
	a := NewPageAllocator(rs, 16)
	m := NewOrderedMap[uint32, []byte](a.SubMemory(0), FixedUint32Codec(), BytesCodec(4))
	if err := m.Insert(1, []byte("this value is definitely too long")); err == nil {
		t.Fatalf("expected ErrValueTooLarge")
	}
}
