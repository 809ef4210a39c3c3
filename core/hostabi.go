// Package core implements the stable-memory persistence layer shared by
// every canister built on top of canisdk: the raw store, the page
// allocator, and the bounded/unbounded container types built over it.
package core

import (
	"context"
	"fmt"
)

// PageSize is the fixed block size of the raw store, matching the host's
// stable-memory page size.
const PageSize = 65536

// RejectCode coarsely classifies a failed inter-canister call, mirroring the
// host ABI's own classification.
type RejectCode int

const (
	RejectSysFatal RejectCode = iota
	RejectSysTransient
	RejectSysUnknown
	RejectCanisterReject
	RejectCanisterError
)

// MaybeFailed reports whether the reject code leaves the callee's state
// indeterminate (the four "maybe-failed" codes), as opposed to
// RejectCanisterError, which is a definitive callee panic.
func (c RejectCode) MaybeFailed() bool {
	return c != RejectCanisterError
}

// Principal is a variable-length (<=29 byte) identifier for a canister or
// user, per the glossary.
type Principal []byte

func (p Principal) Equal(o Principal) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HostMemory is the host ABI surface for stable memory: stable_size,
// stable_grow, stable_read, stable_write. It is a fixed, out-of-scope
// collaborator — canisdk never implements it against real host intrinsics,
// only against HeapRawStore for tests and local tooling. A production
// canister build supplies its own HostMemory backed by the actual host
// syscalls.
type HostMemory interface {
	StableSize() uint64
	StableGrow(deltaPages uint64) (priorPages uint64, ok bool)
	StableRead(offset uint64, buf []byte)
	StableWrite(offset uint64, buf []byte)
}

// Messaging is the host ABI surface for the current message: reply,
// arg_data, caller, id, time, cycles and inter-canister call dispatch. Out
// of scope beyond this interface declaration — an embedding canister build
// supplies the real implementation.
type Messaging interface {
	Caller() Principal
	ID() Principal
	TimeNanos() uint64
	ArgData() []byte
	Reply(data []byte)
	CyclesAvailable() uint64
	CyclesAccept(amount uint64) uint64
	CyclesRefunded() uint64
	Call(ctx context.Context, target Principal, method string, arg []byte, cycles uint64) (reply []byte, reject *RejectCode, err error)
}

// HostScheduler is the host ABI's cooperative executor: spawn enqueues a
// future-shaped task to run within the current message's execution window.
type HostScheduler interface {
	Spawn(f func())
}

// Timers is the host ABI's one-shot timer facility.
type Timers interface {
	SetTimer(delayNanos uint64, cb func()) (cancel func())
}

// TrapError is raised by Trap: irrecoverable, caused by an invariant
// violation, memory exhaustion, or deserialisation failure. The host rolls
// back the current message. In this repository cmd/debugserver's chi
// Recoverer middleware recovers any panic, this one included, per HTTP
// request; cmd/cli does not recover it, so a trap ends the CLI process.
type TrapError struct {
	Msg string
}

func (e *TrapError) Error() string { return "trap: " + e.Msg }

// Trap aborts the current message by panicking with a *TrapError. Embedding
// entry points must recover it at the message boundary and discard all
// uncommitted writes, exactly as the host does.
func Trap(format string, args ...any) {
	panic(&TrapError{Msg: fmt.Sprintf(format, args...)})
}
