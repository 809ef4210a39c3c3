package scheduler

import (
	"encoding/binary"
	"errors"

	"canisdk/core"
)

// InnerTaskCodec builds the fixed-size encoding for InnerScheduledTask[T]
// out of the caller's codec for T and a maximum stored-error byte length.
// RetryPolicy and BackoffPolicy fields embed their own small fixed-size
// encodings inline.
func InnerTaskCodec[T Task](taskCodec core.Codec[T], maxErrLen int) core.Codec[InnerScheduledTask[T]] {
	const fixedPart = 4 /*id*/ + 1 /*status*/ + 8 /*statusTS*/ +
		1 /*retryKind*/ + 4 /*maxRetries*/ +
		1 /*backoffKind*/ + 8 /*fixedSecs*/ + 1 + 8*8 /*stepsSecs: count+8 entries*/ + 8 + 8 /*base,mult*/ +
		4 /*failures*/ + 8 /*executeAfterTS*/ + 8 /*runningTimeoutS*/ +
		2 /*errLen prefix*/
	size := fixedPart + maxErrLen + taskCodec.MaxSize

	return core.Codec[InnerScheduledTask[T]]{
		MaxSize: size,
		Encode: func(t InnerScheduledTask[T]) []byte {
			b := make([]byte, size)
			off := 0
			binary.BigEndian.PutUint32(b[off:], t.ID)
			off += 4
			b[off] = byte(t.Status)
			off++
			binary.BigEndian.PutUint64(b[off:], t.StatusTS)
			off += 8

			b[off] = byte(t.RetryPolicy.Kind)
			off++
			binary.BigEndian.PutUint32(b[off:], t.RetryPolicy.MaxRetries)
			off += 4

			b[off] = byte(t.BackoffPolicy.Kind)
			off++
			binary.BigEndian.PutUint64(b[off:], t.BackoffPolicy.FixedSecs)
			off += 8
			n := len(t.BackoffPolicy.StepsSecs)
			if n > 8 {
				core.Trap("scheduler: backoff policy has more than 8 variable steps")
			}
			b[off] = byte(n)
			off++
			for i := 0; i < 8; i++ {
				if i < n {
					binary.BigEndian.PutUint64(b[off:], t.BackoffPolicy.StepsSecs[i])
				}
				off += 8
			}
			binary.BigEndian.PutUint64(b[off:], t.BackoffPolicy.BaseSecs)
			off += 8
			binary.BigEndian.PutUint64(b[off:], t.BackoffPolicy.Multiplier)
			off += 8

			binary.BigEndian.PutUint32(b[off:], t.Failures)
			off += 4
			binary.BigEndian.PutUint64(b[off:], t.ExecuteAfterTS)
			off += 8
			binary.BigEndian.PutUint64(b[off:], t.RunningTimeoutS)
			off += 8

			errBytes := []byte(t.FailErr)
			if len(errBytes) > maxErrLen {
				errBytes = errBytes[:maxErrLen]
			}
			binary.BigEndian.PutUint16(b[off:], uint16(len(errBytes)))
			off += 2
			copy(b[off:off+maxErrLen], errBytes)
			off += maxErrLen

			taskBytes := taskCodec.Encode(t.Task)
			if len(taskBytes) > taskCodec.MaxSize {
				core.Trap("scheduler: encoded task exceeds declared max size %d", taskCodec.MaxSize)
			}
			copy(b[off:off+taskCodec.MaxSize], taskBytes)
			return b
		},
		Decode: func(b []byte) InnerScheduledTask[T] {
			var t InnerScheduledTask[T]
			off := 0
			t.ID = binary.BigEndian.Uint32(b[off:])
			off += 4
			t.Status = Status(b[off])
			off++
			t.StatusTS = binary.BigEndian.Uint64(b[off:])
			off += 8

			t.RetryPolicy.Kind = RetryKind(b[off])
			off++
			t.RetryPolicy.MaxRetries = binary.BigEndian.Uint32(b[off:])
			off += 4

			t.BackoffPolicy.Kind = BackoffKind(b[off])
			off++
			t.BackoffPolicy.FixedSecs = binary.BigEndian.Uint64(b[off:])
			off += 8
			n := int(b[off])
			off++
			steps := make([]uint64, 0, n)
			for i := 0; i < 8; i++ {
				v := binary.BigEndian.Uint64(b[off:])
				if i < n {
					steps = append(steps, v)
				}
				off += 8
			}
			t.BackoffPolicy.StepsSecs = steps
			t.BackoffPolicy.BaseSecs = binary.BigEndian.Uint64(b[off:])
			off += 8
			t.BackoffPolicy.Multiplier = binary.BigEndian.Uint64(b[off:])
			off += 8

			t.Failures = binary.BigEndian.Uint32(b[off:])
			off += 4
			t.ExecuteAfterTS = binary.BigEndian.Uint64(b[off:])
			off += 8
			t.RunningTimeoutS = binary.BigEndian.Uint64(b[off:])
			off += 8

			errLen := int(binary.BigEndian.Uint16(b[off:]))
			off += 2
			t.FailErr = string(b[off : off+errLen])
			off += maxErrLen

			t.Task = taskCodec.Decode(b[off : off+taskCodec.MaxSize])
			return t
		},
	}
}

func uint32Codec() core.Codec[uint32] { return core.FixedUint32Codec() }

// TaskScheduler is a persistent, cooperative scheduler for tasks of type T,
// per spec §4.6. Tasks are not sorted by ready-time; Run performs a linear
// scan because execute_after_ts changes frequently on retry and the host's
// per-tick budget favours a cheap scan over maintaining a secondary index.
type TaskScheduler[T Task] struct {
	tasks               *core.OrderedMap[uint32, InnerScheduledTask[T]]
	nextID               uint32
	nextIDCell           *core.Cell[uint32]
	onCompletion         CompletionCallback[T]
	defaultRunningTimeoutS uint64
	nowSecs              func() uint64
}

// DefaultRunningTaskTimeoutS is the default maximum wall time a task may
// remain Scheduled or Running before being declared timed out.
const DefaultRunningTaskTimeoutS = 120

// NewTaskScheduler initialises a brand-new, empty TaskScheduler over the
// given sub-memories (one for the task map, one for the next-id counter).
func NewTaskScheduler[T Task](tasksSM, idSM *core.SubMemory, taskCodec core.Codec[T], maxErrLen int, nowSecs func() uint64) *TaskScheduler[T] {
	return &TaskScheduler[T]{
		tasks:                  core.NewOrderedMap[uint32, InnerScheduledTask[T]](tasksSM, uint32Codec(), InnerTaskCodec[T](taskCodec, maxErrLen)),
		nextIDCell:             core.NewCell[uint32](idSM, core.FixedUint32Codec(), 0),
		defaultRunningTimeoutS: DefaultRunningTaskTimeoutS,
		nowSecs:                nowSecs,
	}
}

// OpenTaskScheduler reattaches to a TaskScheduler previously created by
// NewTaskScheduler.
func OpenTaskScheduler[T Task](tasksSM, idSM *core.SubMemory, taskCodec core.Codec[T], maxErrLen int, nowSecs func() uint64) *TaskScheduler[T] {
	return &TaskScheduler[T]{
		tasks:                  core.OpenOrderedMap[uint32, InnerScheduledTask[T]](tasksSM, uint32Codec(), InnerTaskCodec[T](taskCodec, maxErrLen)),
		nextIDCell:             core.OpenCell[uint32](idSM, core.FixedUint32Codec()),
		defaultRunningTimeoutS: DefaultRunningTaskTimeoutS,
		nowSecs:                nowSecs,
	}
}

// OnCompletion registers the callback fired exactly once per task when it
// reaches a terminal status.
func (s *TaskScheduler[T]) OnCompletion(cb CompletionCallback[T]) { s.onCompletion = cb }

// SetRunningTaskTimeout overrides the default 120s timeout.
func (s *TaskScheduler[T]) SetRunningTaskTimeout(secs uint64) { s.defaultRunningTimeoutS = secs }

// AppendTask assigns the next id, persists the task as Waiting{now}, and
// returns its id.
func (s *TaskScheduler[T]) AppendTask(task T, retry RetryPolicy, backoff BackoffPolicy) uint32 {
	id := s.nextIDCell.Get() + 1
	if id == 0 {
		core.Trap("scheduler: task id overflow at uint32 max")
	}
	if err := s.nextIDCell.Set(id); err != nil {
		core.Trap("scheduler: persist next id: %v", err)
	}
	now := s.nowSecs()
	rec := InnerScheduledTask[T]{
		ID: id, Task: task, Status: StatusWaiting, StatusTS: now,
		RetryPolicy: retry, BackoffPolicy: backoff,
		ExecuteAfterTS: now, RunningTimeoutS: s.defaultRunningTimeoutS,
	}
	if err := s.tasks.Insert(id, rec); err != nil {
		core.Trap("scheduler: persist task %d: %v", id, err)
	}
	return id
}

// AppendTasks is the bulk variant of AppendTask.
func (s *TaskScheduler[T]) AppendTasks(tasks []T, retry RetryPolicy, backoff BackoffPolicy) []uint32 {
	ids := make([]uint32, len(tasks))
	for i, t := range tasks {
		ids[i] = s.AppendTask(t, retry, backoff)
	}
	return ids
}

// GetTask returns the current persisted record for id.
func (s *TaskScheduler[T]) GetTask(id uint32) (InnerScheduledTask[T], error) {
	t, ok := s.tasks.Get(id)
	if !ok {
		return InnerScheduledTask[T]{}, ErrTaskNotFound
	}
	return t, nil
}

// Run executes one scheduler tick: it launches every Waiting task whose
// execute_after_ts has elapsed and declares every Scheduled/Running task
// whose running timeout has elapsed as timed out, per spec §4.6. It returns
// the number of tasks launched this tick.
func (s *TaskScheduler[T]) Run(ctx ExecContext) int {
	now := s.nowSecs()

	var toLaunch, toTimeout []InnerScheduledTask[T]
	it := s.tasks.Iter()
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		rec := e.Value
		switch rec.Status {
		case StatusWaiting:
			if rec.ExecuteAfterTS <= now {
				toLaunch = append(toLaunch, rec)
			}
		case StatusScheduled, StatusRunning:
			if rec.StatusTS+rec.RunningTimeoutS < now {
				toTimeout = append(toTimeout, rec)
			}
		}
	}

	for _, rec := range toLaunch {
		rec.Status = StatusScheduled
		rec.StatusTS = now
		if err := s.tasks.Insert(rec.ID, rec); err != nil {
			core.Trap("scheduler: persist launch %d: %v", rec.ID, err)
		}
		s.runOne(ctx, rec.ID)
	}

	for _, rec := range toTimeout {
		s.tasks.Remove(rec.ID)
		rec.Status = StatusTimeoutOrPanic
		rec.StatusTS = now
		s.fireCompletion(rec)
	}

	return len(toLaunch)
}

// runOne transitions a launched task Scheduled→Running and executes it. A
// production build spawns this on the host's cooperative executor (spec §5
// "Suspension points"); this rendition executes it synchronously within
// Run, since there is no real host executor to hand it to outside a
// canister build.
func (s *TaskScheduler[T]) runOne(ctx ExecContext, id uint32) {
	rec, ok := s.tasks.Get(id)
	if !ok {
		return // already resolved/removed; tolerate per spec §5 "Cancellation"
	}
	now := s.nowSecs()
	rec.Status = StatusRunning
	rec.StatusTS = now
	if err := s.tasks.Insert(id, rec); err != nil {
		core.Trap("scheduler: persist run %d: %v", id, err)
	}

	err := rec.Task.Execute(ctx)

	rec, ok = s.tasks.Get(id)
	if !ok {
		return
	}
	s.onExecuteResult(rec, err)
}

func (s *TaskScheduler[T]) onExecuteResult(rec InnerScheduledTask[T], err error) {
	now := s.nowSecs()
	if err == nil {
		s.tasks.Remove(rec.ID)
		rec.Status = StatusCompleted
		rec.StatusTS = now
		s.fireCompletion(rec)
		return
	}
	if errors.Is(err, ErrUnrecoverable) {
		s.tasks.Remove(rec.ID)
		rec.Status = StatusFailed
		rec.StatusTS = now
		rec.FailErr = err.Error()
		s.fireCompletion(rec)
		return
	}

	rec.Failures++
	if rec.RetryPolicy.Allows(rec.Failures) {
		rec.Status = StatusWaiting
		rec.StatusTS = now
		rec.ExecuteAfterTS = now + rec.BackoffPolicy.Delay(rec.Failures)
		if e := s.tasks.Insert(rec.ID, rec); e != nil {
			core.Trap("scheduler: persist retry %d: %v", rec.ID, e)
		}
		return // no completion callback on a retry
	}

	s.tasks.Remove(rec.ID)
	rec.Status = StatusFailed
	rec.StatusTS = now
	rec.FailErr = err.Error()
	s.fireCompletion(rec)
}

func (s *TaskScheduler[T]) fireCompletion(rec InnerScheduledTask[T]) {
	if s.onCompletion != nil {
		s.onCompletion(rec)
	}
}
