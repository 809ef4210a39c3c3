package core

import "errors"

// Structured error kinds per the error-handling design: MemoryError and
// ValueTooLarge are surfaced to callers rather than trapping; TrapError
// (core/hostabi.go) is the irrecoverable kind.
var (
	// ErrMemory indicates a grow failure or an out-of-bounds offset that a
	// caller can reasonably react to instead of trapping.
	ErrMemory = errors.New("core: memory error")
	// ErrValueTooLarge indicates a user tried to insert a value (or key)
	// whose encoding exceeds the declared bound for its container.
	ErrValueTooLarge = errors.New("core: value exceeds declared maximum size")
	// ErrNotFound indicates a lookup found no matching entry.
	ErrNotFound = errors.New("core: not found")
	// ErrOwnerRange indicates an owner id outside [0,255] was requested
	// from the allocator.
	ErrOwnerRange = errors.New("core: owner id out of range")
)
