// Package vuser implements VirtualUser and VirtualUserManager: a long-lived
// logical worker that loops task execution until stopped, and a manager
// that converges the active worker count to a target, generalizing a fixed
// pair of background scan loops into an elastic pool of N stoppable
// workers.
package vuser

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadforge/engine/internal/task"
)

// Collector is the subset of metrics.Collector a VirtualUser needs. Kept as
// a narrow interface so vuser does not import metrics directly, avoiding an
// import cycle and keeping the package independently testable.
type Collector interface {
	RecordResult(result task.Result)
}

// VirtualUser is a long-lived logical worker. It must not be reused across
// managers; a stopped VirtualUser's loop has exited for good.
type VirtualUser struct {
	id         int64
	factory    task.Factory
	collector  Collector
	globalStop <-chan struct{}

	stopCh chan struct{}
	done   chan struct{}

	nextTaskID atomic.Int64
}

func newVirtualUser(id int64, factory task.Factory, collector Collector, globalStop <-chan struct{}) *VirtualUser {
	return &VirtualUser{
		id:         id,
		factory:    factory,
		collector:  collector,
		globalStop: globalStop,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// run is the worker loop: while not stopped and not globally stopped, pull a
// task, execute it, record the result. executeOnce recovers a panicking
// Execute (or factory call) and records it as a failed Result, so one bad
// task never kills the user's loop.
func (v *VirtualUser) run() {
	defer close(v.done)
	for {
		select {
		case <-v.stopCh:
			return
		case <-v.globalStop:
			return
		default:
		}

		taskID := v.nextTaskID.Add(1)
		v.executeOnce(taskID)
	}
}

func (v *VirtualUser) executeOnce(taskID int64) {
	defer func() {
		if r := recover(); r != nil {
			v.collector.RecordResult(task.Failure(taskID, 0, task.TruncateErrorMessage(panicMessage(r))))
		}
	}()
	t := v.factory(taskID)
	result := t.Execute()
	v.collector.RecordResult(result)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic in virtual user task execution"
}

// stop signals cancellation. It does not wait for the loop to exit.
func (v *VirtualUser) stop() {
	select {
	case <-v.stopCh:
	default:
		close(v.stopCh)
	}
}

// Manager owns a list of active VirtualUsers and converges it to a target
// size via AdjustConcurrency. All mutation of the user list is serialized
// by mu; the list itself is never read or written without holding it.
type Manager struct {
	mu      sync.Mutex
	users   []*VirtualUser
	nextID  atomic.Int64
	factory task.Factory

	collector  Collector
	globalStop chan struct{}
}

// New builds a Manager. globalStop, when closed, stops every user
// immediately regardless of the manager's own bookkeeping.
func New(factory task.Factory, collector Collector, globalStop chan struct{}) *Manager {
	return &Manager{factory: factory, collector: collector, globalStop: globalStop}
}

// AdjustConcurrency converges the active user count to target: starting
// target-current new users if target > current, or stopping current-target
// users from the tail (LIFO) if target < current. A no-op at equality.
func (m *Manager) AdjustConcurrency(target int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int32(len(m.users))
	switch {
	case target > current:
		for i := int32(0); i < target-current; i++ {
			id := m.nextID.Add(1)
			vu := newVirtualUser(id, m.factory, m.collector, m.globalStop)
			m.users = append(m.users, vu)
			go vu.run()
		}
	case target < current:
		toStop := current - target
		for i := int32(0); i < toStop; i++ {
			last := len(m.users) - 1
			m.users[last].stop()
			m.users = m.users[:last]
		}
	}
}

// ActiveUsers returns the current observable user count.
func (m *Manager) ActiveUsers() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int32(len(m.users))
}

// ShutdownAll stops every user and waits for their loops to exit, up to
// timeout. The manager's list is cleared immediately so ActiveUsers reports
// 0 right away; on timeout, any user whose loop hasn't exited yet is
// abandoned (its goroutine may still be winding down in the background) and
// logged rather than blocking the caller indefinitely.
func (m *Manager) ShutdownAll(timeout time.Duration) {
	m.mu.Lock()
	users := m.users
	m.users = nil
	m.mu.Unlock()

	for _, vu := range users {
		vu.stop()
	}

	deadline := time.After(timeout)
	for i, vu := range users {
		select {
		case <-vu.done:
		case <-deadline:
			log.Printf("[vuser] shutdown timeout after %s: %d of %d workers did not exit in time", timeout, len(users)-i, len(users))
			return
		}
	}
}
