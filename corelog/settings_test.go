package corelog

import (
	"testing"

	"canisdk/core"
)

func TestSettingsCellGetSet(t *testing.T) {
	rs := core.NewHeapRawStore()
	a := core.NewPageAllocator(rs, 64)
	sc := NewSettingsCell(a.SubMemory(0), DefaultSettings())

	got := sc.Get()
	if got.Filter != "info" || !got.Console || !got.InMemory {
		t.Fatalf("default settings = %+v", got)
	}

	updated := got
	updated.Filter = "debug,scheduler=trace"
	updated.InMemoryRecords = 50
	if err := sc.Set(updated); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := sc.Get(); got.Filter != "debug,scheduler=trace" || got.InMemoryRecords != 50 {
		t.Fatalf("got %+v after set", got)
	}
}

func TestSettingsCellReopenPreservesValue(t *testing.T) {
	rs := core.NewHeapRawStore()
	a := core.NewPageAllocator(rs, 64)
	sc := NewSettingsCell(a.SubMemory(0), DefaultSettings())
	s := sc.Get()
	s.Console = false
	_ = sc.Set(s)

	sc2 := OpenSettingsCell(a.SubMemory(0))
	if sc2.Get().Console {
		t.Fatalf("reopened settings should preserve Console=false")
	}
}
