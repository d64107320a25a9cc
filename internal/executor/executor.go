// Package executor implements BoundedTaskExecutor: a fixed-capacity
// concurrent task runner backed by goroutines-as-lightweight-workers,
// gated by a counting-semaphore permit pool, using a
// sem-channel/stopCh/WaitGroup shutdown idiom generalized from "run a
// bounded concurrent unit of work" to "execute one Task and return its
// Result."
package executor

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadforge/engine/internal/task"
)

// Future is the handle returned by Submit/TrySubmit. Its value is not ready
// until Done() is closed.
type Future struct {
	done   chan struct{}
	result task.Result
}

// Done returns a channel that closes once the task has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the task completes and returns its outcome.
func (f *Future) Result() task.Result {
	<-f.done
	return f.result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(r task.Result) {
	f.result = r
	close(f.done)
}

// Executor is a fixed-capacity concurrent task runner. Permits enforce
// concurrency, not the underlying goroutine count — the Go runtime already
// multiplexes arbitrarily many goroutines onto a bounded OS-thread pool.
type Executor struct {
	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	maxConcurrency int32

	activeTasks    atomic.Int64
	submittedTasks atomic.Int64
	completedTasks atomic.Int64

	closeOnce sync.Once
}

// New builds an Executor with the given permit capacity.
func New(maxConcurrency int32) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Executor{
		sem:            make(chan struct{}, maxConcurrency),
		stopCh:         make(chan struct{}),
		maxConcurrency: maxConcurrency,
	}
}

// Submit blocks until a permit is available (or the executor is closing),
// then runs t on a new goroutine and returns a Future for its Result.
// Returns nil only if the executor is closed before a permit is acquired.
func (e *Executor) Submit(t task.Task) *Future {
	select {
	case <-e.stopCh:
		return nil
	default:
	}
	select {
	case e.sem <- struct{}{}:
	case <-e.stopCh:
		return nil
	}
	return e.runLocked(t)
}

// TrySubmit returns a Future immediately if a permit is available, or nil
// without blocking if the executor is at capacity or closing.
func (e *Executor) TrySubmit(t task.Task) *Future {
	select {
	case <-e.stopCh:
		return nil
	default:
	}
	select {
	case e.sem <- struct{}{}:
	default:
		return nil
	}
	return e.runLocked(t)
}

// runLocked assumes a permit has already been acquired on e.sem.
func (e *Executor) runLocked(t task.Task) *Future {
	e.submittedTasks.Add(1)
	e.activeTasks.Add(1)
	fut := newFuture()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		defer e.activeTasks.Add(-1)
		defer e.completedTasks.Add(1)

		result := e.runSafely(t)
		fut.complete(result)
	}()
	return fut
}

// runSafely executes t.Execute and converts a panic into a failed Result
// rather than letting it escape and crash the worker goroutine.
func (e *Executor) runSafely(t task.Task) (result task.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = task.Failure(result.TaskID, 0, task.TruncateErrorMessage(panicMessage(r)))
		}
	}()
	return t.Execute()
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic in task execution"
}

// ActiveTasks returns the number of tasks currently running.
func (e *Executor) ActiveTasks() int64 { return e.activeTasks.Load() }

// SubmittedTasks returns the total number of tasks ever accepted.
func (e *Executor) SubmittedTasks() int64 { return e.submittedTasks.Load() }

// CompletedTasks returns the total number of tasks that have finished.
func (e *Executor) CompletedTasks() int64 { return e.completedTasks.Load() }

// PendingTasks is submittedTasks - completedTasks - activeTasks, floored at
// zero so a benign read-order race never reports a negative count.
func (e *Executor) PendingTasks() int64 {
	p := e.submittedTasks.Load() - e.completedTasks.Load() - e.activeTasks.Load()
	if p < 0 {
		return 0
	}
	return p
}

// AvailablePermits returns the number of permits not currently held.
func (e *Executor) AvailablePermits() int32 {
	return e.maxConcurrency - int32(len(e.sem))
}

// MaxConcurrency returns the executor's permit capacity.
func (e *Executor) MaxConcurrency() int32 { return e.maxConcurrency }

// AwaitCompletion blocks until ActiveTasks reaches 0 or timeout elapses,
// returning true iff it reached 0.
func (e *Executor) AwaitCompletion(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	const pollInterval = 5 * time.Millisecond
	for {
		if e.activeTasks.Load() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return e.activeTasks.Load() == 0
		}
		remaining := time.Until(deadline)
		if remaining > pollInterval {
			remaining = pollInterval
		}
		time.Sleep(remaining)
	}
}

// Close initiates cooperative shutdown: new Submit calls unblock and return
// nil, and Close waits up to grace for in-flight tasks before returning.
// It does not forcibly cancel running tasks — cancellation is the caller's
// task implementation's responsibility, not the executor's.
func (e *Executor) Close(grace time.Duration) {
	e.closeOnce.Do(func() {
		close(e.stopCh)
	})
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Printf("[executor] close grace period of %s elapsed with %d task(s) still active", grace, e.activeTasks.Load())
	}
}
