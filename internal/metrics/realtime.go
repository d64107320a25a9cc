package metrics

import (
	"sync"
	"time"
)

// DefaultTPSRingCapacity is the default cap on the number of retained
// completion timestamps.
const DefaultTPSRingCapacity = 100_000

// DefaultTPSWindow is the sliding window over which TPS is computed.
const DefaultTPSWindow = 5 * time.Second

// tpsRing is a fixed-capacity circular buffer of completion timestamps,
// holding one entry per completed task rather than a periodic named
// sample.
type tpsRing struct {
	mu    sync.Mutex
	times []int64 // unix nanos, chronologically ordered within the ring
	head  int
	count int
	cap   int
}

func newTPSRing(capacity int) *tpsRing {
	if capacity <= 0 {
		capacity = DefaultTPSRingCapacity
	}
	return &tpsRing{times: make([]int64, capacity), cap: capacity}
}

// push records a completion at nowNanos, overwriting the oldest entry once
// full.
func (r *tpsRing) push(nowNanos int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times[r.head] = nowNanos
	r.head = (r.head + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

// tps returns count(samples >= nowNanos - window) / window.Seconds().
func (r *tpsRing) tps(nowNanos int64, window time.Duration) float64 {
	cutoff := nowNanos - window.Nanoseconds()

	r.mu.Lock()
	count := 0
	for i := 0; i < r.count; i++ {
		idx := (r.head - 1 - i + r.cap) % r.cap
		if r.times[idx] < cutoff {
			break // ring is chronologically ordered walking backward; stop early
		}
		count++
	}
	r.mu.Unlock()

	seconds := window.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(count) / seconds
}
