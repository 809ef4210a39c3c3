package scheduler

import "canisdk/core"

// Status is a task's place in the Waiting→Scheduled→Running→terminal state
// machine, per spec §3 "ScheduledTask".
type Status int

const (
	StatusWaiting Status = iota
	StatusScheduled
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusTimeoutOrPanic
)

// Task is the payload a TaskScheduler[T] persists and later executes. T is
// a concrete, codec-encodable type (mirroring core.Codec[T] elsewhere,
// since the host has no notion of serialising an arbitrary interface
// value). Execute must tolerate being invoked after its own
// InnerScheduledTask record has already been removed: spec §5
// "Cancellation" requires a timed-out task's in-flight future, on resume,
// to find its state absent and be a no-op.
type Task interface {
	Execute(ctx ExecContext) error
}

// ExecContext is what a Task's Execute receives: the subset of the host ABI
// it is allowed to touch.
type ExecContext struct {
	Messaging core.Messaging
}

// InnerScheduledTask is the persisted record for one task, per spec §3.
type InnerScheduledTask[T Task] struct {
	ID              uint32
	Task            T
	Status          Status
	StatusTS        uint64 // seconds, when Status was last set
	FailErr         string // populated only when Status == StatusFailed
	RetryPolicy     RetryPolicy
	BackoffPolicy   BackoffPolicy
	Failures        uint32
	ExecuteAfterTS  uint64 // seconds
	RunningTimeoutS uint64 // seconds a Scheduled/Running task may remain before timing out
}

// CompletionCallback is invoked exactly once per task, when it reaches a
// terminal status.
type CompletionCallback[T Task] func(t InnerScheduledTask[T])
