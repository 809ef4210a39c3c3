package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"canisdk/core"
	"canisdk/scheduler"
)

// demoTask is a trivial Task that always succeeds, standing in for the real
// per-canister task payloads a production build would schedule.
type demoTask struct {
	Label string
}

func (t demoTask) Execute(ctx scheduler.ExecContext) error { return nil }

func demoTaskCodec() core.Codec[demoTask] {
	labelCodec := core.StringCodec(256)
	return core.Codec[demoTask]{
		MaxSize: labelCodec.MaxSize,
		Encode:  func(t demoTask) []byte { return labelCodec.Encode(t.Label) },
		Decode:  func(b []byte) demoTask { return demoTask{Label: labelCodec.Decode(b)} },
	}
}

var (
	sched     *scheduler.TaskScheduler[demoTask]
	schedOnce sync.Once
)

func schedInit(_ *cobra.Command, _ []string) error {
	schedOnce.Do(func() {
		sm := appStore().SubMemory(smSchedulerTasks)
		idSM := appStore().SubMemory(smSchedulerNextID)
		sched = scheduler.NewTaskScheduler[demoTask](sm, idSM, demoTaskCodec(), 256, func() uint64 { return uint64(time.Now().Unix()) })
	})
	return nil
}

var SchedulerCmd = &cobra.Command{
	Use:               "scheduler",
	Short:             "Append and drive demo tasks through the task scheduler",
	PersistentPreRunE: schedInit,
}

func init() {
	SchedulerCmd.AddCommand(&cobra.Command{
		Use:   "append <label>",
		Short: "Append a demo task that completes on its first tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := sched.AppendTask(demoTask{Label: args[0]}, scheduler.RetryPolicy{Kind: scheduler.RetryMaxRetries, MaxRetries: 3}, scheduler.BackoffPolicy{Kind: scheduler.BackoffFixed, FixedSecs: 5})
			fmt.Fprintf(cmd.OutOrStdout(), "appended task %d\n", id)
			return nil
		},
	})

	SchedulerCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one scheduler tick",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := sched.Run(scheduler.ExecContext{})
			fmt.Fprintf(cmd.OutOrStdout(), "launched %d task(s)\n", n)
			return nil
		},
	})

	SchedulerCmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show a task's current persisted state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint32
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			task, err := sched.GetTask(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%d label=%q status=%d failures=%d\n", task.ID, task.Task.Label, task.Status, task.Failures)
			return nil
		},
	})
}
