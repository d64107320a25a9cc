// Package concurrency implements the concurrency controller: it wraps a
// ramp.Strategy with the run's Mode and an optional TPS ceiling, and
// exposes the single piece of state a runner's control loop needs each
// tick — what concurrency to aim for right now.
package concurrency

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/loadforge/engine/internal/config"
	"github.com/loadforge/engine/internal/ramp"
)

var (
	errNilStrategy    = errors.New("concurrency: strategy must not be nil")
	errNegativeTPSCap = errors.New("concurrency: maxTPSLimit must be >= 0")
)

// Controller tracks elapsed run time against a ramp.Strategy and reports the
// target concurrency for that instant. It is safe for concurrent use — the
// control loop and any status-reporting goroutine may call its methods
// concurrently; all mutable state is a handful of atomics, never a mutex.
type Controller struct {
	strategy    ramp.Strategy
	mode        config.Mode
	maxTPSLimit int64 // 0 when unset

	startedAt      atomic.Int64 // unix nanos; 0 before Start
	currentTarget  atomic.Int32
	rampCompleteAt atomic.Int64 // unix nanos of the first Tick that reached MaxConcurrency, 0 until observed
}

// NewController builds a Controller for a validated run configuration. It
// rejects a nil strategy or a negative maxTPSLimit eagerly, rather than
// deferring to a nil-deref the first time Tick or ShouldThrottle is called.
func NewController(strategy ramp.Strategy, mode config.Mode, maxTPSLimit int64) (*Controller, error) {
	if strategy == nil {
		return nil, errNilStrategy
	}
	if maxTPSLimit < 0 {
		return nil, errNegativeTPSCap
	}
	c := &Controller{strategy: strategy, mode: mode, maxTPSLimit: maxTPSLimit}
	c.currentTarget.Store(strategy.StartingConcurrency())
	return c, nil
}

// Start records the run's zero point. Calling it more than once re-bases
// elapsed-time calculations, which a runner should never do mid-run.
func (c *Controller) Start(now time.Time) {
	c.startedAt.Store(now.UnixNano())
}

// Tick recomputes and stores the target concurrency for the given instant,
// returning it. A runner's control loop calls this once per control period.
func (c *Controller) Tick(now time.Time) int32 {
	elapsed := c.elapsedSeconds(now)
	target := c.strategy.TargetConcurrency(elapsed)
	c.currentTarget.Store(target)
	if target >= c.strategy.MaxConcurrency() && c.rampCompleteAt.Load() == 0 {
		c.rampCompleteAt.Store(now.UnixNano())
	}
	return target
}

// TargetConcurrency returns the most recently computed target without
// advancing time, for callers that only need to read current state.
func (c *Controller) TargetConcurrency() int32 {
	return c.currentTarget.Load()
}

// ShouldThrottle reports whether the runner's control loop should back off
// this tick: true iff mode is RATE_LIMITED, a TPS ceiling is configured,
// and currentTps has reached it.
func (c *Controller) ShouldThrottle(currentTps float64) bool {
	return c.mode == config.ModeRateLimited && c.maxTPSLimit > 0 && currentTps >= float64(c.maxTPSLimit)
}

// RampUpProgress returns the percentage (0..100) of the ramp that has
// completed at elapsedSeconds. Once the ramp has reached MaxConcurrency
// it reports 100 regardless of remaining sustain time.
func (c *Controller) RampUpProgress(elapsedSeconds int64) float64 {
	target := c.strategy.TargetConcurrency(elapsedSeconds)
	start := c.strategy.StartingConcurrency()
	max := c.strategy.MaxConcurrency()
	if max == start {
		return 100
	}
	progress := 100 * float64(target-start) / float64(max-start)
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// MaxConcurrency exposes the strategy's ceiling, e.g. for pre-sizing an
// executor's semaphore.
func (c *Controller) MaxConcurrency() int32 { return c.strategy.MaxConcurrency() }

// MaxTPSLimit returns the configured ceiling, or 0 if unset.
func (c *Controller) MaxTPSLimit() int64 { return c.maxTPSLimit }

// ElapsedSeconds returns the whole seconds elapsed since Start, or 0 if Start
// has not been called.
func (c *Controller) ElapsedSeconds(now time.Time) int64 {
	return c.elapsedSeconds(now)
}

func (c *Controller) elapsedSeconds(now time.Time) int64 {
	started := c.startedAt.Load()
	if started == 0 {
		return 0
	}
	return int64(now.Sub(time.Unix(0, started)).Seconds())
}
