package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/loadforge/engine/internal/config"
	"github.com/loadforge/engine/internal/executor"
	"github.com/loadforge/engine/internal/metrics"
	"github.com/loadforge/engine/internal/ratecontrol"
	"github.com/loadforge/engine/internal/task"
)

var errMaxTPSLimitRequired = errors.New("runner: MaxTPSLimit must be > 0 for RateRunner")

// RateRunner is the rate-based TestRunner flavor, kept for backward
// compatibility: it paces submissions to a target TPS via RateController,
// using the executor's trySubmit/back-off loop rather than a pool of
// long-lived virtual users.
type RateRunner struct {
	cfg     *config.RunConfig
	timing  Timing
	factory task.Factory

	rateCtl   *ratecontrol.Controller
	collector *metrics.Collector
	exec      *executor.Executor

	stopRequested atomic.Bool
	nextTaskID    atomic.Int64
}

// NewRateRunner validates cfg and wires up the collaborators for one
// rate-based run.
func NewRateRunner(cfg *config.RunConfig, factory task.Factory, timing Timing) (*RateRunner, error) {
	if err := validateCommon(cfg, factory); err != nil {
		return nil, err
	}
	if cfg.MaxTPSLimit <= 0 {
		return nil, errMaxTPSLimitRequired
	}

	return &RateRunner{
		cfg:       cfg,
		timing:    timing,
		factory:   factory,
		rateCtl:   ratecontrol.New(cfg.MaxTPSLimit, time.Duration(cfg.RateRampUpSeconds)*time.Second),
		collector: metrics.New(),
		exec:      executor.New(cfg.MaxConcurrency),
	}, nil
}

// Run paces task submission to the configured TPS until time-up, stop, or
// ctx cancellation, then drains in-flight work before returning.
func (r *RateRunner) Run(ctx context.Context) (TestResult, error) {
	runID := newRunID()
	start := time.Now()
	deadline := start.Add(time.Duration(r.cfg.TestDurationSeconds) * time.Second)
	stop := make(chan struct{})
	ctxDone := ctx.Done()

	go func() {
		select {
		case <-ctxDone:
			close(stop)
		case <-stop:
		}
	}()

loop:
	for {
		if time.Now().After(deadline) || r.stopRequested.Load() {
			break loop
		}
		select {
		case <-ctxDone:
			break loop
		default:
		}

		if !r.rateCtl.AcquirePermit(stop) {
			break loop
		}

		taskID := r.nextTaskID.Add(1)
		fut := r.exec.TrySubmit(r.factory(taskID))
		if fut == nil {
			time.Sleep(r.timing.SubmitBackoff)
			continue
		}
		go func() {
			result := fut.Result()
			r.collector.RecordResult(result)
		}()
	}

	select {
	case <-stop:
	default:
		close(stop)
	}
	r.stopRequested.Store(true)
	r.exec.AwaitCompletion(r.timing.AwaitCompletion)
	r.exec.Close(r.timing.ExecutorGrace)
	r.collector.Close()

	return TestResult{
		RunID:          runID,
		Snapshot:       r.collector.Snapshot(),
		ActualDuration: time.Since(start),
	}, nil
}

// Stop requests cooperative termination. Idempotent.
func (r *RateRunner) Stop() {
	r.stopRequested.Store(true)
}

// Snapshot returns the current metrics view without waiting for Run to
// return.
func (r *RateRunner) Snapshot() metrics.Snapshot {
	return r.collector.Snapshot()
}
