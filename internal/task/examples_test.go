package task

import (
	"testing"
	"time"
)

func TestSleepTask_ReportsLatencyAndSuccess(t *testing.T) {
	factory := NewSleepTask(5 * time.Millisecond)
	result := factory(1).Execute()
	if !result.Success {
		t.Fatal("expected sleep task to succeed")
	}
	if result.LatencyNanos < (5 * time.Millisecond).Nanoseconds() {
		t.Fatalf("LatencyNanos = %d, want >= %d", result.LatencyNanos, (5 * time.Millisecond).Nanoseconds())
	}
}

func TestCPUTask_ReturnsChecksumMetadata(t *testing.T) {
	factory := NewCPUTask(1000)
	result := factory(42).Execute()
	if !result.Success {
		t.Fatal("expected CPU task to succeed")
	}
	if _, ok := result.Metadata["checksum"]; !ok {
		t.Fatal("expected a checksum in the result metadata")
	}
}

func TestFlakyTask_AlwaysSucceedsAtRateOne(t *testing.T) {
	factory := NewFlakyTask(1.0)
	for i := 0; i < 20; i++ {
		if !factory(int64(i)).Execute().Success {
			t.Fatal("expected every execution to succeed at successRate=1.0")
		}
	}
}

func TestFlakyTask_AlwaysFailsAtRateZero(t *testing.T) {
	factory := NewFlakyTask(0.0)
	for i := 0; i < 20; i++ {
		result := factory(int64(i)).Execute()
		if result.Success {
			t.Fatal("expected every execution to fail at successRate=0.0")
		}
		if result.ErrorMessage != "timeout" {
			t.Fatalf("ErrorMessage = %q, want %q", result.ErrorMessage, "timeout")
		}
	}
}

func TestFlakyTask_ClampsOutOfRangeRates(t *testing.T) {
	tooHigh := NewFlakyTask(5.0)
	if !tooHigh(1).Execute().Success {
		t.Fatal("expected a rate above 1.0 to clamp to always-succeed")
	}
	tooLow := NewFlakyTask(-5.0)
	if tooLow(1).Execute().Success {
		t.Fatal("expected a rate below 0.0 to clamp to always-fail")
	}
}
