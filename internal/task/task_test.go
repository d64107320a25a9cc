package task

import (
	"strings"
	"testing"
	"time"
)

func TestTruncateErrorMessage_ShortMessagePassesThrough(t *testing.T) {
	msg := "connection refused"
	if got := TruncateErrorMessage(msg); got != msg {
		t.Fatalf("TruncateErrorMessage(%q) = %q, want unchanged", msg, got)
	}
}

func TestTruncateErrorMessage_TruncatesAtRuneBoundary(t *testing.T) {
	msg := strings.Repeat("é", MaxErrorMessageLen+50) // multi-byte rune
	got := TruncateErrorMessage(msg)
	if len([]rune(got)) != MaxErrorMessageLen {
		t.Fatalf("truncated message has %d runes, want %d", len([]rune(got)), MaxErrorMessageLen)
	}
}

func TestSuccess_BuildsSuccessfulResult(t *testing.T) {
	r := Success(7, 5*time.Millisecond)
	if !r.Success || r.TaskID != 7 || r.ErrorMessage != "" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.LatencyNanos != (5 * time.Millisecond).Nanoseconds() {
		t.Fatalf("LatencyNanos = %d, want %d", r.LatencyNanos, (5 * time.Millisecond).Nanoseconds())
	}
}

func TestFailure_TruncatesErrorMessage(t *testing.T) {
	long := strings.Repeat("x", MaxErrorMessageLen*2)
	r := Failure(1, time.Millisecond, long)
	if r.Success {
		t.Fatal("expected Success == false")
	}
	if len(r.ErrorMessage) != MaxErrorMessageLen {
		t.Fatalf("ErrorMessage has %d runes, want %d", len(r.ErrorMessage), MaxErrorMessageLen)
	}
}
