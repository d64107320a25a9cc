// Package metrics implements MetricsCollector: it ingests TaskResults from
// many concurrent producers and produces a Snapshot on demand, with bounded
// memory regardless of run length. Hot-path counters are lock-free atomics;
// the reservoir and error-kind map bound memory for latency sampling and
// failure-message diversity independent of run length.
package metrics

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/loadforge/engine/internal/task"
	"github.com/puzpuzpuz/xsync/v4"
)

// MaxErrorKinds bounds the error-message-to-count map. Overflow beyond this
// many distinct messages merges into a single "OTHER" bucket so memory
// never grows with the diversity of failures.
const MaxErrorKinds = 100

const otherErrorKind = "OTHER"

// Collector aggregates TaskResults and produces MetricsSnapshots. The zero
// value is not usable; construct with New.
type Collector struct {
	startInstant time.Time

	totalTasks      atomic.Int64
	successfulTasks atomic.Int64
	failedTasks     atomic.Int64
	latencySumNanos atomic.Int64

	minLatencyNanos atomic.Int64 // 0 until first observation
	maxLatencyNanos atomic.Int64

	reservoir *reservoir
	tps       *tpsRing

	errorCounts   *xsync.Map[string, *atomic.Int64]
	errorKindsLen atomic.Int32

	closed           atomic.Bool
	finalPercentiles atomic.Pointer[Percentiles] // set by Close before the reservoir is released
}

// Option configures non-default capacities at construction. Most callers
// should use the defaults via New.
type Option func(*Collector)

// WithReservoirSize overrides the default N_LAT reservoir capacity.
func WithReservoirSize(size int) Option {
	return func(c *Collector) { c.reservoir = newReservoir(size) }
}

// WithTPSRingCapacity overrides the default timestamp-ring capacity.
func WithTPSRingCapacity(capacity int) Option {
	return func(c *Collector) { c.tps = newTPSRing(capacity) }
}

// New constructs a Collector with its start instant set to now.
func New(opts ...Option) *Collector {
	c := &Collector{
		startInstant: time.Now(),
		reservoir:    newReservoir(DefaultReservoirSize),
		tps:          newTPSRing(DefaultTPSRingCapacity),
		errorCounts:  xsync.NewMap[string, *atomic.Int64](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordResult ingests one TaskResult. Non-blocking on the counter path;
// the reservoir write takes a short internal lock. Safe to call from any
// number of concurrent producers, and a no-op after Close.
func (c *Collector) RecordResult(r task.Result) {
	if c.closed.Load() {
		return
	}

	c.totalTasks.Add(1)
	if r.Success {
		c.successfulTasks.Add(1)
	} else {
		c.failedTasks.Add(1)
		c.recordError(r.ErrorMessage)
	}

	latency := r.LatencyNanos
	if latency < 0 {
		latency = 0 // a clock anomaly is treated as zero latency, never negative
	}
	c.latencySumNanos.Add(latency)
	c.updateMin(latency)
	c.updateMax(latency)
	c.reservoir.offer(latency)
	c.tps.push(time.Now().UnixNano())
}

func (c *Collector) recordError(errMsg string) {
	if errMsg == "" {
		errMsg = "unknown"
	}
	key := task.TruncateErrorMessage(errMsg)

	if _, ok := c.errorCounts.Load(key); !ok {
		if c.errorKindsLen.Load() >= MaxErrorKinds {
			log.Printf("[metrics] error-kind cardinality exceeded %d distinct messages, folding %q into %q", MaxErrorKinds, key, otherErrorKind)
			key = otherErrorKind
		}
	}

	counter, loaded := c.errorCounts.LoadOrStore(key, &atomic.Int64{})
	if !loaded && key != otherErrorKind {
		c.errorKindsLen.Add(1)
	}
	counter.Add(1)
}

func (c *Collector) updateMin(latency int64) {
	for {
		cur := c.minLatencyNanos.Load()
		if cur != 0 && cur <= latency {
			return
		}
		if c.minLatencyNanos.CompareAndSwap(cur, latency) {
			return
		}
	}
}

func (c *Collector) updateMax(latency int64) {
	for {
		cur := c.maxLatencyNanos.Load()
		if cur >= latency {
			return
		}
		if c.maxLatencyNanos.CompareAndSwap(cur, latency) {
			return
		}
	}
}

// Snapshot returns a consistent point-in-time view, per-field but not
// cross-field transactional.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()
	total := c.totalTasks.Load()
	successful := c.successfulTasks.Load()
	failed := c.failedTasks.Load()

	var avgLatencyMs float64
	if total > 0 {
		avgLatencyMs = float64(c.latencySumNanos.Load()) / float64(total) / 1e6
	}
	var successRate float64
	if total > 0 {
		successRate = float64(successful) / float64(total)
	}

	var percentiles Percentiles
	if final := c.finalPercentiles.Load(); final != nil {
		percentiles = *final
	} else {
		percentiles = computePercentiles(c.reservoir.sortedCopy())
	}

	errorCounts := make(map[string]int64)
	c.errorCounts.Range(func(k string, v *atomic.Int64) bool {
		errorCounts[k] = v.Load()
		return true
	})

	return Snapshot{
		StartTime:       c.startInstant,
		Elapsed:         now.Sub(c.startInstant),
		TotalTasks:      total,
		SuccessfulTasks: successful,
		FailedTasks:     failed,
		TPS:             c.tps.tps(now.UnixNano(), DefaultTPSWindow),
		AvgLatencyMs:    avgLatencyMs,
		SuccessRate:     successRate,
		MinLatencyNanos: c.minLatencyNanos.Load(),
		MaxLatencyNanos: c.maxLatencyNanos.Load(),
		Percentiles:     percentiles,
		ErrorCounts:     errorCounts,
	}
}

// Close releases the collector's sampling buffers. Idempotent —
// RecordResult becomes a no-op afterward, and Snapshot continues to reflect
// whatever was recorded before Close.
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return // already closed
	}
	final := computePercentiles(c.reservoir.sortedCopy())
	c.finalPercentiles.Store(&final)
	c.reservoir.release()
}
