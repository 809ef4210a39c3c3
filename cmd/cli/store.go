package main

import (
	"sync"

	"canisdk/core"
)

// storeOnce guards lazy initialisation of the process-wide allocator backing
// every subsystem command below. A real deployment wires these sub-memories
// to the host's actual stable memory; this CLI is a host-simulation for
// local inspection, so an in-process heap store stands in for it.
var (
	store     *core.PageAllocator
	storeOnce sync.Once
)

const growthPages = 64

func appStore() *core.PageAllocator {
	storeOnce.Do(func() {
		rs := core.NewHeapRawStore()
		store = core.NewPageAllocator(rs, growthPages)
	})
	return store
}

// Sub-memory indices are partitioned by subsystem so independent commands
// never collide: 0-9 allocator demo, 10-19 scheduler, 20-29 payments, 30-39
// logger.
const (
	smAllocatorDemo = 0

	smSchedulerTasks = 10
	smSchedulerNextID = 11

	smPaymentsRecovery = 20
	smPaymentsLock     = 21
	smPaymentsFee      = 22

	smLoggerCfg    = 30
	smLoggerSlots  = 31
	smLoggerState  = 32
)
