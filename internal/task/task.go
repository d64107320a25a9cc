// Package task defines the unit of synthetic work the engine drives against
// a target system, and its outcome.
package task

import "time"

// Task is a single unit of work. A Task value must be safe to invoke
// repeatedly across different workers — it carries no shared mutable state
// of its own. Long-lived resources (connection pools, gRPC channels) belong
// to the TaskFactory or plugin configuration that produced it, never to the
// Task value.
type Task interface {
	// Execute runs the task once and returns its outcome. There is no Go
	// error return: failures are recorded in the returned Result's
	// Success/ErrorMessage fields, and a panic is recovered at the
	// VirtualUser or executor boundary into a failed Result.
	Execute() Result
}

// Factory creates a Task for a given sequential task ID. Factories are pure
// with respect to the core — a plugin implementation may close over mutable
// state (an HTTP client, a gRPC channel) as long as that state is safe for
// concurrent use, since the same factory is shared across workers.
type Factory func(taskID int64) Task

// Result is the immutable outcome of one Task.Execute call.
type Result struct {
	TaskID       int64
	LatencyNanos int64
	Success      bool
	ErrorMessage string
	PayloadBytes int64
	Metadata     map[string]any
}

// MaxErrorMessageLen bounds an error message before it becomes an
// error-kind map key, so one verbose message can't dominate memory.
const MaxErrorMessageLen = 100

// TruncateErrorMessage applies MaxErrorMessageLen, operating on runes so a
// multi-byte character is never split.
func TruncateErrorMessage(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorMessageLen {
		return msg
	}
	return string(r[:MaxErrorMessageLen])
}

// Success builds a successful Result with the given latency.
func Success(taskID int64, latency time.Duration) Result {
	return Result{TaskID: taskID, LatencyNanos: latency.Nanoseconds(), Success: true}
}

// Failure builds a failed Result, truncating the error message so it's
// safe to use as an error-kind bucket key.
func Failure(taskID int64, latency time.Duration, errMsg string) Result {
	return Result{
		TaskID:       taskID,
		LatencyNanos: latency.Nanoseconds(),
		Success:      false,
		ErrorMessage: TruncateErrorMessage(errMsg),
	}
}
