package core

import "fmt"

// RawStore is a thin abstraction over either real stable memory (host
// syscalls, via WasmRawStore) or a growable byte buffer (HeapRawStore, used
// by tests, the CLI and the debug server). It never shrinks.
type RawStore interface {
	// SizePages reports the current size of the store in PageSize blocks.
	SizePages() uint64
	// GrowPages attempts to grow the store by deltaPages pages, zeroing the
	// new region. Returns the prior size in pages and false if the store
	// could not grow.
	GrowPages(deltaPages uint64) (priorPages uint64, ok bool)
	// Read copies len(buf) bytes starting at offset into buf. Traps if the
	// range is not fully backed by allocated pages.
	Read(offset uint64, buf []byte)
	// Write copies buf into the store starting at offset. Traps if the
	// range is not fully backed by allocated pages.
	Write(offset uint64, buf []byte)
}

// HeapRawStore is a RawStore backed by a plain Go byte slice. It is the
// reference implementation used everywhere outside of a real canister
// build: unit tests, the admin CLI, the debug server.
type HeapRawStore struct {
	buf []byte
}

// NewHeapRawStore creates an empty heap-backed raw store.
func NewHeapRawStore() *HeapRawStore {
	return &HeapRawStore{}
}

func (h *HeapRawStore) SizePages() uint64 {
	return uint64(len(h.buf)) / PageSize
}

func (h *HeapRawStore) GrowPages(deltaPages uint64) (uint64, bool) {
	prior := h.SizePages()
	if deltaPages == 0 {
		return prior, true
	}
	h.buf = append(h.buf, make([]byte, deltaPages*PageSize)...)
	return prior, true
}

func (h *HeapRawStore) Read(offset uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	end := offset + uint64(len(buf))
	if end > uint64(len(h.buf)) {
		Trap("rawstore: read [%d,%d) out of bounds (size %d)", offset, end, len(h.buf))
	}
	copy(buf, h.buf[offset:end])
}

func (h *HeapRawStore) Write(offset uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	end := offset + uint64(len(buf))
	if end > uint64(len(h.buf)) {
		Trap("rawstore: write [%d,%d) out of bounds (size %d)", offset, end, len(h.buf))
	}
	copy(h.buf[offset:end], buf)
}

// WasmRawStore is the production RawStore, delegating every operation to
// the host ABI via a HostMemory collaborator. canisdk never implements
// HostMemory itself (see core/hostabi.go); an embedding canister build
// supplies it.
type WasmRawStore struct {
	host HostMemory
}

// NewWasmRawStore wraps a HostMemory implementation as a RawStore.
func NewWasmRawStore(host HostMemory) *WasmRawStore {
	return &WasmRawStore{host: host}
}

func (w *WasmRawStore) SizePages() uint64 {
	return w.host.StableSize()
}

func (w *WasmRawStore) GrowPages(deltaPages uint64) (uint64, bool) {
	if deltaPages == 0 {
		return w.host.StableSize(), true
	}
	prior, ok := w.host.StableGrow(deltaPages)
	if !ok {
		return prior, false
	}
	return prior, true
}

func (w *WasmRawStore) Read(offset uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	if offset+uint64(len(buf)) > w.host.StableSize()*PageSize {
		Trap("rawstore: read [%d,%d) exceeds stable memory size", offset, offset+uint64(len(buf)))
	}
	w.host.StableRead(offset, buf)
}

func (w *WasmRawStore) Write(offset uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	if offset+uint64(len(buf)) > w.host.StableSize()*PageSize {
		Trap("rawstore: write [%d,%d) exceeds stable memory size", offset, offset+uint64(len(buf)))
	}
	w.host.StableWrite(offset, buf)
}

// ensureGrown grows store by enough pages so that it has at least
// minPages, returning an error wrapping ErrMemory (never trapping) when
// the store cannot grow. Nothing in the package calls it; the allocator
// grows its store through GrowPages directly.
func ensureGrown(rs RawStore, minPages uint64) error {
	cur := rs.SizePages()
	if cur >= minPages {
		return nil
	}
	if _, ok := rs.GrowPages(minPages - cur); !ok {
		return fmt.Errorf("%w: cannot grow raw store to %d pages", ErrMemory, minPages)
	}
	return nil
}
