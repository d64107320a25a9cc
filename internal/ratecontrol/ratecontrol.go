// Package ratecontrol implements a token scheduler that paces submissions
// to a target TPS, with an optional linear warm-up. It is the Go-idiom
// descendant of the ramping leaky-bucket pacer used by rate-based load
// generators — here built on atomics instead of a mutex-guarded bucket.
package ratecontrol

import (
	"sync/atomic"
	"time"
)

// Controller paces acquirePermit calls to targetTps, optionally ramping the
// effective rate up linearly from 1 tps over rampUpDuration. The schedule
// and the warm-up start are kept as UnixNano wall-clock values, which carry
// no monotonic reading: a wall-clock adjustment during a run shifts the
// schedule by the same amount. Only the sleep until a scheduled permit
// (time.Sleep / time.Timer) is measured on the monotonic clock.
type Controller struct {
	targetTps        int64
	rampUpDurationNs int64

	startNanos         int64 // UnixNano (wall clock) at construction/reset
	nextExecutionNanos atomic.Int64
	permitsIssued      atomic.Int64

	clock func() time.Time
}

// New builds a Controller targeting targetTps permits/sec, ramping up
// linearly over rampUpDuration (0 disables warm-up — the controller paces at
// targetTps immediately).
func New(targetTps int64, rampUpDuration time.Duration) *Controller {
	return newWithClock(targetTps, rampUpDuration, time.Now)
}

func newWithClock(targetTps int64, rampUpDuration time.Duration, clock func() time.Time) *Controller {
	if targetTps < 1 {
		targetTps = 1
	}
	c := &Controller{
		targetTps:        targetTps,
		rampUpDurationNs: rampUpDuration.Nanoseconds(),
		clock:            clock,
	}
	now := clock()
	c.startNanos = now.UnixNano()
	c.nextExecutionNanos.Store(now.UnixNano())
	return c
}

// currentIntervalNanos returns the pacing interval in effect at `now`,
// accounting for linear warm-up.
func (c *Controller) currentIntervalNanos(now time.Time) int64 {
	baseInterval := int64(1e9) / c.targetTps
	if c.rampUpDurationNs <= 0 {
		return baseInterval
	}
	elapsed := now.UnixNano() - c.startNanos
	if elapsed >= c.rampUpDurationNs {
		return baseInterval
	}
	if elapsed < 0 {
		elapsed = 0
	}
	progress := float64(elapsed) / float64(c.rampUpDurationNs)
	if progress > 1 {
		progress = 1
	}
	currentTps := int64(1 + (float64(c.targetTps-1) * progress))
	if currentTps < 1 {
		currentTps = 1
	}
	return int64(1e9) / currentTps
}

// AcquirePermit blocks until the next permit is due and returns true. It
// returns false only if ctx-style cancellation via the supplied stop channel
// fires while sleeping; pass a nil channel to make it uninterruptible.
func (c *Controller) AcquirePermit(stop <-chan struct{}) bool {
	now := c.clock()
	interval := c.currentIntervalNanos(now)
	scheduled := c.nextExecutionNanos.Add(interval) - interval

	if scheduled <= now.UnixNano() {
		c.permitsIssued.Add(1)
		return true
	}

	wait := time.Duration(scheduled - now.UnixNano())
	if stop == nil {
		time.Sleep(wait)
		c.permitsIssued.Add(1)
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		c.permitsIssued.Add(1)
		return true
	case <-stop:
		return false
	}
}

// TryAcquirePermit returns true and consumes a permit only if one is
// immediately available (the schedule has already caught up to now).
// Otherwise it returns false without writing the schedule: the advance is
// a CompareAndSwap made only once a permit is due, so a miss never
// consumes a future slot and leaves nothing to roll back.
func (c *Controller) TryAcquirePermit() bool {
	now := c.clock().UnixNano()
	interval := c.currentIntervalNanos(c.clock())
	for {
		scheduled := c.nextExecutionNanos.Load()
		if scheduled > now {
			return false
		}
		if c.nextExecutionNanos.CompareAndSwap(scheduled, scheduled+interval) {
			c.permitsIssued.Add(1)
			return true
		}
		// Another goroutine raced us; reread and retry.
		now = c.clock().UnixNano()
	}
}

// Reset rebases the schedule to now and zeros the issued-permit counter.
func (c *Controller) Reset() {
	now := c.clock()
	c.startNanos = now.UnixNano()
	c.nextExecutionNanos.Store(now.UnixNano())
	c.permitsIssued.Store(0)
}

// PermitsIssued returns the number of permits granted since construction or
// the last Reset.
func (c *Controller) PermitsIssued() int64 {
	return c.permitsIssued.Load()
}

// TargetTps returns the configured steady-state target.
func (c *Controller) TargetTps() int64 { return c.targetTps }
