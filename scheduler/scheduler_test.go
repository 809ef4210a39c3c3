package scheduler

import (
	"encoding/binary"
	"errors"
	"testing"

	"canisdk/core"
)

// testTask is a concrete, codec-encodable Task whose behaviour is driven by a
// scripted sequence of replies keyed by its ID, since Execute itself carries
// no attempt counter.
type testTask struct {
	ID uint32
}

var taskScripts = map[uint32][]error{}
var taskCallCounts = map[uint32]int{}

func scriptTask(id uint32, replies ...error) testTask {
	taskScripts[id] = replies
	taskCallCounts[id] = 0
	return testTask{ID: id}
}

func (t testTask) Execute(ctx ExecContext) error {
	script := taskScripts[t.ID]
	idx := taskCallCounts[t.ID]
	taskCallCounts[t.ID]++
	if idx >= len(script) {
		if len(script) == 0 {
			return nil
		}
		return script[len(script)-1]
	}
	return script[idx]
}

func testTaskCodec() core.Codec[testTask] {
	return core.Codec[testTask]{
		MaxSize: 4,
		Encode:  func(t testTask) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, t.ID); return b },
		Decode:  func(b []byte) testTask { return testTask{ID: binary.BigEndian.Uint32(b)} },
	}
}

func newTestScheduler(t *testing.T, now *uint64) *TaskScheduler[testTask] {
	t.Helper()
	rs := core.NewHeapRawStore()
	a := core.NewPageAllocator(rs, 256)
	return NewTaskScheduler[testTask](a.SubMemory(0), a.SubMemory(1), testTaskCodec(), 256, func() uint64 { return *now })
}

func TestSchedulerLaunchesWaitingTaskOnceReady(t *testing.T) {
	now := uint64(100)
	s := newTestScheduler(t, &now)
	task := scriptTask(1, nil)
	id := s.AppendTask(task, RetryPolicy{Kind: RetryNone}, BackoffPolicy{})

	launched := s.Run(ExecContext{})
	if launched != 1 {
		t.Fatalf("launched = %d; want 1", launched)
	}
	if _, err := s.GetTask(id); err != ErrTaskNotFound {
		t.Fatalf("completed task should be removed, got err=%v", err)
	}
}

func TestSchedulerRetriesWithBackoffBeforeSucceeding(t *testing.T) {
	now := uint64(100)
	s := newTestScheduler(t, &now)
	task := scriptTask(2, errors.New("transient"), nil)
	id := s.AppendTask(task, RetryPolicy{Kind: RetryMaxRetries, MaxRetries: 2}, BackoffPolicy{Kind: BackoffFixed, FixedSecs: 10})

	if n := s.Run(ExecContext{}); n != 1 {
		t.Fatalf("first run launched = %d; want 1", n)
	}
	rec, err := s.GetTask(id)
	if err != nil {
		t.Fatalf("task should still exist awaiting retry: %v", err)
	}
	if rec.Status != StatusWaiting || rec.Failures != 1 {
		t.Fatalf("rec = %+v; want Waiting with 1 failure", rec)
	}
	if rec.ExecuteAfterTS != now+10 {
		t.Fatalf("executeAfterTS = %d; want %d", rec.ExecuteAfterTS, now+10)
	}

	// Not yet ready.
	if n := s.Run(ExecContext{}); n != 0 {
		t.Fatalf("run before backoff elapsed launched = %d; want 0", n)
	}

	now += 10
	if n := s.Run(ExecContext{}); n != 1 {
		t.Fatalf("run after backoff elapsed launched = %d; want 1", n)
	}
	if _, err := s.GetTask(id); err != ErrTaskNotFound {
		t.Fatalf("task should be removed after eventual success")
	}
}

func TestSchedulerUnrecoverableFailsImmediately(t *testing.T) {
	now := uint64(100)
	s := newTestScheduler(t, &now)
	task := scriptTask(3, ErrUnrecoverable)
	id := s.AppendTask(task, RetryPolicy{Kind: RetryInfinite}, BackoffPolicy{})

	var completed *InnerScheduledTask[testTask]
	s.OnCompletion(func(rec InnerScheduledTask[testTask]) { completed = &rec })

	s.Run(ExecContext{})
	if _, err := s.GetTask(id); err != ErrTaskNotFound {
		t.Fatalf("unrecoverable task should be removed despite RetryInfinite")
	}
	if completed == nil || completed.Status != StatusFailed {
		t.Fatalf("completion callback = %+v; want StatusFailed", completed)
	}
}

func TestSchedulerRunningTaskTimeout(t *testing.T) {
	now := uint64(100)
	s := newTestScheduler(t, &now)
	s.SetRunningTaskTimeout(30)

	// This rendition's Run executes a launched task synchronously, so there
	// is no in-process way to strand one mid-flight; simulate a suspended
	// host executor by inserting an already-Running record directly, the
	// way a real build's record would look while awaiting a host callback.
	task := scriptTask(4, nil)
	stuck := InnerScheduledTask[testTask]{
		ID: 99, Task: task, Status: StatusRunning, StatusTS: now,
		RetryPolicy: RetryPolicy{Kind: RetryNone}, RunningTimeoutS: 30,
	}
	if err := s.tasks.Insert(stuck.ID, stuck); err != nil {
		t.Fatalf("insert stuck task: %v", err)
	}

	var timedOut *InnerScheduledTask[testTask]
	s.OnCompletion(func(rec InnerScheduledTask[testTask]) { timedOut = &rec })

	if n := s.Run(ExecContext{}); n != 0 {
		t.Fatalf("launched = %d; want 0 (not yet past the timeout)", n)
	}
	if timedOut != nil {
		t.Fatalf("fired completion before the running timeout elapsed")
	}

	now += 31
	s.Run(ExecContext{})
	if timedOut == nil || timedOut.Status != StatusTimeoutOrPanic {
		t.Fatalf("completion = %+v; want StatusTimeoutOrPanic", timedOut)
	}
	if _, err := s.GetTask(99); err != ErrTaskNotFound {
		t.Fatalf("timed-out task should be removed")
	}
}

func TestSchedulerCompletionCallbackFiresExactlyOnce(t *testing.T) {
	now := uint64(100)
	s := newTestScheduler(t, &now)
	calls := 0
	s.OnCompletion(func(rec InnerScheduledTask[testTask]) { calls++ })

	task := scriptTask(6, errors.New("fail once"), nil)
	s.AppendTask(task, RetryPolicy{Kind: RetryMaxRetries, MaxRetries: 3}, BackoffPolicy{Kind: BackoffNone})

	s.Run(ExecContext{}) // fails, retries (no callback)
	if calls != 0 {
		t.Fatalf("calls after retry = %d; want 0", calls)
	}
	s.Run(ExecContext{}) // succeeds
	if calls != 1 {
		t.Fatalf("calls after success = %d; want 1", calls)
	}
}

func TestAppendTasksBulk(t *testing.T) {
	now := uint64(1)
	s := newTestScheduler(t, &now)
	tasks := []testTask{scriptTask(10, nil), scriptTask(11, nil), scriptTask(12, nil)}
	ids := s.AppendTasks(tasks, RetryPolicy{Kind: RetryNone}, BackoffPolicy{})
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d; want 3", len(ids))
	}
	if n := s.Run(ExecContext{}); n != 3 {
		t.Fatalf("launched = %d; want 3", n)
	}
}
