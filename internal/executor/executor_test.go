package executor

import (
	"testing"
	"time"

	"github.com/loadforge/engine/internal/task"
)

type blockingTask struct {
	taskID  int64
	release chan struct{}
}

func (t blockingTask) Execute() task.Result {
	<-t.release
	return task.Success(t.taskID, time.Millisecond)
}

type panicTask struct{}

func (panicTask) Execute() task.Result {
	panic("boom")
}

func TestSubmit_RunsTaskAndCompletesFuture(t *testing.T) {
	e := New(4)
	defer e.Close(time.Second)

	fut := e.Submit(task.NewSleepTask(0)(1))
	if fut == nil {
		t.Fatal("expected non-nil future")
	}
	result := fut.Result()
	if !result.Success || result.TaskID != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if e.CompletedTasks() != 1 {
		t.Fatalf("CompletedTasks() = %d, want 1", e.CompletedTasks())
	}
}

func TestTrySubmit_RefusesAtCapacity(t *testing.T) {
	e := New(1)
	defer e.Close(time.Second)

	release := make(chan struct{})
	first := e.TrySubmit(blockingTask{taskID: 1, release: release})
	if first == nil {
		t.Fatal("expected first TrySubmit to succeed")
	}

	// Wait until the task is counted as active.
	deadline := time.After(time.Second)
	for e.ActiveTasks() == 0 {
		select {
		case <-deadline:
			t.Fatal("task never became active")
		default:
		}
	}

	if second := e.TrySubmit(task.NewSleepTask(0)(2)); second != nil {
		t.Fatal("expected TrySubmit to refuse while at capacity")
	}

	close(release)
	first.Result()
}

func TestPendingTasksNeverNegative(t *testing.T) {
	e := New(2)
	defer e.Close(time.Second)
	if e.PendingTasks() != 0 {
		t.Fatalf("PendingTasks() = %d, want 0 on a fresh executor", e.PendingTasks())
	}
}

func TestAccountingInvariant_ActiveNeverExceedsMax(t *testing.T) {
	e := New(3)
	defer e.Close(2 * time.Second)

	release := make(chan struct{})
	var futures []*Future
	for i := 0; i < 3; i++ {
		fut := e.Submit(blockingTask{taskID: int64(i), release: release})
		futures = append(futures, fut)
	}
	if e.ActiveTasks() > int64(e.MaxConcurrency()) {
		t.Fatalf("activeTasks %d exceeds maxConcurrency %d", e.ActiveTasks(), e.MaxConcurrency())
	}
	if e.TrySubmit(task.NewSleepTask(0)(99)) != nil {
		t.Fatal("expected executor at full capacity to refuse a 4th task")
	}
	close(release)
	for _, f := range futures {
		f.Result()
	}
}

func TestPanicInTask_BecomesFailedResult(t *testing.T) {
	e := New(2)
	defer e.Close(time.Second)

	fut := e.Submit(panicTask{})
	result := fut.Result()
	if result.Success {
		t.Fatal("expected a panicking task to surface as a failed result")
	}
	if result.ErrorMessage != "boom" {
		t.Fatalf("ErrorMessage = %q, want %q", result.ErrorMessage, "boom")
	}
}

func TestAwaitCompletion(t *testing.T) {
	e := New(2)
	defer e.Close(time.Second)

	release := make(chan struct{})
	fut := e.Submit(blockingTask{taskID: 1, release: release})

	if e.AwaitCompletion(50 * time.Millisecond) {
		t.Fatal("expected AwaitCompletion to time out while the task is still blocked")
	}
	close(release)
	fut.Result()
	if !e.AwaitCompletion(time.Second) {
		t.Fatal("expected AwaitCompletion to succeed once the task has finished")
	}
}

func TestClose_RefusesNewSubmissions(t *testing.T) {
	e := New(2)
	e.Close(time.Second)

	if fut := e.Submit(task.NewSleepTask(0)(1)); fut != nil {
		t.Fatal("expected Submit to return nil after Close")
	}
	if fut := e.TrySubmit(task.NewSleepTask(0)(1)); fut != nil {
		t.Fatal("expected TrySubmit to return nil after Close")
	}
}

func TestAvailablePermits(t *testing.T) {
	e := New(2)
	defer e.Close(time.Second)

	if e.AvailablePermits() != 2 {
		t.Fatalf("AvailablePermits() = %d, want 2", e.AvailablePermits())
	}
	release := make(chan struct{})
	e.Submit(blockingTask{taskID: 1, release: release})

	deadline := time.After(time.Second)
	for e.AvailablePermits() != 1 {
		select {
		case <-deadline:
			t.Fatal("permit was never consumed")
		default:
		}
	}
	close(release)
}
