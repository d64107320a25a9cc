// Package runner implements the two TestRunner flavors: a concurrency-based
// runner (primary, also used for the rate-limited hybrid mode) and a
// rate-based runner (kept for backward compatibility). Both share the
// Runner interface and TestResult shape but own disjoint state for the
// duration of one run — no collaborator is ever shared between two runs.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loadforge/engine/internal/concurrency"
	"github.com/loadforge/engine/internal/config"
	"github.com/loadforge/engine/internal/metrics"
	"github.com/loadforge/engine/internal/ramp"
	"github.com/loadforge/engine/internal/task"
)

// newRunID generates the identifier stamped onto a TestResult at the start
// of Run, so a suite orchestrator (or a log aggregator) can correlate a
// single run's log lines and snapshot across process boundaries.
func newRunID() string {
	return uuid.NewString()
}

// Runner orchestrates a single test run against a task.Factory.
type Runner interface {
	// Run executes the configured workload until its time budget elapses
	// or ctx is cancelled, whichever comes first, and returns the final
	// result. Stop may be called concurrently from another goroutine to
	// request early termination.
	Run(ctx context.Context) (TestResult, error)

	// Stop requests cooperative termination. Idempotent; safe before,
	// during, or after Run.
	Stop()

	// Snapshot returns the current metrics view without waiting for Run
	// to return.
	Snapshot() metrics.Snapshot
}

// TestResult is the outcome of one completed run. RunID lets a suite
// orchestrator correlate a result with the scenario invocation that
// produced it across logs, without the core depending on any particular
// logging or storage layer.
type TestResult struct {
	RunID          string
	Snapshot       metrics.Snapshot
	ActualDuration time.Duration
}

// Timing holds the control-loop cadence constants a runner needs, so
// callers can override the defaults (e.g. in tests, for a fast control
// period).
type Timing struct {
	ControlPeriod   time.Duration // ConcurrencyRunner's control loop tick
	Backoff         time.Duration // ConcurrencyRunner's throttle back-off
	ExecutorGrace   time.Duration // BoundedTaskExecutor.close() grace
	ShutdownTimeout time.Duration // VirtualUserManager.shutdownAll() timeout
	AwaitCompletion time.Duration // RateRunner's final drain wait
	SubmitBackoff   time.Duration // RateRunner's trySubmit back-off
}

// DefaultTiming returns the shared default cadence and grace periods.
func DefaultTiming() Timing {
	return Timing{
		ControlPeriod:   config.DefaultControlPeriod,
		Backoff:         config.DefaultBackoff,
		ExecutorGrace:   config.DefaultExecutorGrace,
		ShutdownTimeout: config.DefaultShutdownTimeout,
		AwaitCompletion: config.DefaultAwaitCompletion,
		SubmitBackoff:   time.Millisecond,
	}
}

// buildStrategy constructs the ramp.Strategy a RunConfig describes.
// Construction errors are eager.
func buildStrategy(cfg *config.RunConfig) (ramp.Strategy, error) {
	switch cfg.RampStrategyType {
	case config.RampStrategyStep:
		return ramp.NewStep(cfg.StartingConcurrency, cfg.RampStep, cfg.MaxConcurrency, cfg.RampIntervalSeconds, cfg.SustainDurationSeconds)
	case config.RampStrategyLinear:
		return ramp.NewLinear(cfg.StartingConcurrency, cfg.MaxConcurrency, cfg.RampDurationSeconds, cfg.SustainDurationSeconds)
	default:
		return nil, fmt.Errorf("runner: unknown ramp strategy type %q", cfg.RampStrategyType)
	}
}

func validateCommon(cfg *config.RunConfig, factory task.Factory) error {
	if cfg == nil {
		return fmt.Errorf("runner: cfg must not be nil")
	}
	if factory == nil {
		return fmt.Errorf("runner: factory must not be nil")
	}
	return nil
}

func newController(cfg *config.RunConfig, strategy ramp.Strategy) (*concurrency.Controller, error) {
	return concurrency.NewController(strategy, cfg.Mode, cfg.MaxTPSLimit)
}
