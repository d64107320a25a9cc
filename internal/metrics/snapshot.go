package metrics

import "time"

// Snapshot is an immutable point-in-time view of a Collector's state.
// Invariants: SuccessfulTasks + FailedTasks <= TotalTasks (equality once
// every submitted task has been recorded); SuccessRate == SuccessfulTasks /
// TotalTasks when TotalTasks > 0, else 0.
type Snapshot struct {
	StartTime       time.Time
	Elapsed         time.Duration
	TotalTasks      int64
	SuccessfulTasks int64
	FailedTasks     int64
	TPS             float64
	AvgLatencyMs    float64
	SuccessRate     float64
	MinLatencyNanos int64
	MaxLatencyNanos int64
	Percentiles     Percentiles
	ErrorCounts     map[string]int64
}
