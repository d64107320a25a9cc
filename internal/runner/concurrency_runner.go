package runner

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/loadforge/engine/internal/concurrency"
	"github.com/loadforge/engine/internal/config"
	"github.com/loadforge/engine/internal/executor"
	"github.com/loadforge/engine/internal/metrics"
	"github.com/loadforge/engine/internal/task"
	"github.com/loadforge/engine/internal/vuser"
)

// ConcurrencyRunner is the primary TestRunner flavor: a control loop ticks
// every Timing.ControlPeriod, reads the ConcurrencyController's current
// target, and converges the VirtualUserManager to it. In RATE_LIMITED mode
// the same control loop also checks ConcurrencyController.ShouldThrottle
// each tick and backs off when the TPS ceiling is hit — concurrency still
// drives offered load, but a ceiling throttles it.
type ConcurrencyRunner struct {
	cfg     *config.RunConfig
	timing  Timing
	factory task.Factory

	controller *concurrency.Controller
	collector  *metrics.Collector
	vum        *vuser.Manager
	exec       *executor.Executor

	stopRequested atomic.Bool
	globalStop    chan struct{}
}

// NewConcurrencyRunner validates cfg and wires up the collaborators for one
// run. Construction errors are eager.
func NewConcurrencyRunner(cfg *config.RunConfig, factory task.Factory, timing Timing) (*ConcurrencyRunner, error) {
	if err := validateCommon(cfg, factory); err != nil {
		return nil, err
	}
	strategy, err := buildStrategy(cfg)
	if err != nil {
		return nil, err
	}

	controller, err := newController(cfg, strategy)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	exec := executor.New(cfg.MaxConcurrency)
	globalStop := make(chan struct{})

	r := &ConcurrencyRunner{
		cfg:        cfg,
		timing:     timing,
		factory:    factory,
		controller: controller,
		collector:  collector,
		exec:       exec,
		globalStop: globalStop,
	}
	// Each virtual user's task is gated through the bounded executor so the
	// active-task accounting holds in CONCURRENCY_BASED mode too — a user
	// submits, blocks for a permit under load, executes, and its result
	// still flows through the same Collector.
	r.vum = vuser.New(r.executeThroughExecutor, collector, globalStop)
	return r, nil
}

// executeThroughExecutor adapts task.Factory to route each virtual user's
// task through the bounded executor, then returns a task.Task whose
// Execute() blocks for the Future — so the VirtualUser loop's accounting
// (one task in flight per loop iteration) still respects maxConcurrency.
func (r *ConcurrencyRunner) executeThroughExecutor(taskID int64) task.Task {
	return executorBoundTask{taskID: taskID, exec: r.exec, inner: r.factory(taskID)}
}

type executorBoundTask struct {
	taskID int64
	exec   *executor.Executor
	inner  task.Task
}

func (t executorBoundTask) Execute() task.Result {
	fut := t.exec.Submit(t.inner)
	if fut == nil {
		return task.Failure(t.taskID, 0, "executor closed")
	}
	return fut.Result()
}

// Run executes the control loop for cfg.TestDurationSeconds or until Stop
// is called or ctx is cancelled.
func (r *ConcurrencyRunner) Run(ctx context.Context) (TestResult, error) {
	runID := newRunID()
	start := time.Now()
	r.controller.Start(start)
	deadline := start.Add(time.Duration(r.cfg.TestDurationSeconds) * time.Second)

	ticker := time.NewTicker(r.timing.ControlPeriod)
	defer ticker.Stop()

loop:
	for {
		now := time.Now()
		if now.After(deadline) || r.stopRequested.Load() {
			break loop
		}

		target := r.controller.Tick(now)
		r.vum.AdjustConcurrency(target)

		if r.controller.ShouldThrottle(r.collector.Snapshot().TPS) {
			time.Sleep(r.timing.Backoff)
		}

		select {
		case <-ctx.Done():
			log.Printf("[runner] run %s: context cancelled after %s, entering shutdown", runID, time.Since(start))
			break loop
		case <-r.globalStop:
			break loop
		case <-ticker.C:
		}
	}

	r.stopRequested.Store(true)
	select {
	case <-r.globalStop:
	default:
		close(r.globalStop)
	}
	r.vum.ShutdownAll(r.timing.ShutdownTimeout)
	r.exec.Close(r.timing.ExecutorGrace)
	r.collector.Close()

	return TestResult{
		RunID:          runID,
		Snapshot:       r.collector.Snapshot(),
		ActualDuration: time.Since(start),
	}, nil
}

// Stop requests cooperative termination. Idempotent.
func (r *ConcurrencyRunner) Stop() {
	r.stopRequested.Store(true)
}

// Snapshot returns the current metrics view without waiting for Run to
// return.
func (r *ConcurrencyRunner) Snapshot() metrics.Snapshot {
	return r.collector.Snapshot()
}
