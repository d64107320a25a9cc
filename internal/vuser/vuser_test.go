package vuser

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/loadforge/engine/internal/task"
)

type countingCollector struct {
	n       atomic.Int64
	success atomic.Int64
}

func (c *countingCollector) RecordResult(r task.Result) {
	c.n.Add(1)
	if r.Success {
		c.success.Add(1)
	}
}

type panicTask struct{}

func (panicTask) Execute() task.Result { panic("vu task boom") }

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAdjustConcurrency_StartsAndStopsUsers(t *testing.T) {
	collector := &countingCollector{}
	globalStop := make(chan struct{})
	m := New(task.NewSleepTask(time.Millisecond), collector, globalStop)
	defer close(globalStop)

	m.AdjustConcurrency(5)
	if got := m.ActiveUsers(); got != 5 {
		t.Fatalf("ActiveUsers() = %d, want 5", got)
	}

	m.AdjustConcurrency(2)
	if got := m.ActiveUsers(); got != 2 {
		t.Fatalf("ActiveUsers() = %d, want 2", got)
	}

	m.AdjustConcurrency(2) // no-op at equality
	if got := m.ActiveUsers(); got != 2 {
		t.Fatalf("ActiveUsers() after no-op = %d, want 2", got)
	}

	m.ShutdownAll(time.Second)
	if got := m.ActiveUsers(); got != 0 {
		t.Fatalf("ActiveUsers() after ShutdownAll = %d, want 0", got)
	}
}

func TestVirtualUser_RecordsResults(t *testing.T) {
	collector := &countingCollector{}
	globalStop := make(chan struct{})
	m := New(task.NewSleepTask(0), collector, globalStop)

	m.AdjustConcurrency(3)
	waitForCondition(t, time.Second, func() bool { return collector.n.Load() > 100 })
	m.ShutdownAll(time.Second)
	close(globalStop)

	if collector.success.Load() == 0 {
		t.Fatal("expected at least one successful result recorded")
	}
}

func TestGlobalStop_HaltsAllUsers(t *testing.T) {
	collector := &countingCollector{}
	globalStop := make(chan struct{})
	m := New(task.NewSleepTask(0), collector, globalStop)

	m.AdjustConcurrency(4)
	waitForCondition(t, time.Second, func() bool { return collector.n.Load() > 10 })

	close(globalStop)
	countBefore := collector.n.Load()
	time.Sleep(20 * time.Millisecond)
	countAfter := collector.n.Load()
	// The loops should have exited promptly; allow a small number of
	// in-flight iterations to land after the stop signal.
	if countAfter-countBefore > countBefore {
		t.Fatalf("recorded %d more results after global stop, loops did not halt promptly", countAfter-countBefore)
	}
}

func TestPanicInsideUserLoop_RecordsFailureAndContinues(t *testing.T) {
	collector := &countingCollector{}
	globalStop := make(chan struct{})
	factory := func(taskID int64) task.Task { return panicTask{} }
	m := New(factory, collector, globalStop)
	defer close(globalStop)

	m.AdjustConcurrency(1)
	waitForCondition(t, time.Second, func() bool { return collector.n.Load() > 5 })
	m.ShutdownAll(time.Second)

	if collector.success.Load() != 0 {
		t.Fatalf("expected every result from a panicking task to be a failure, got %d successes", collector.success.Load())
	}
}
