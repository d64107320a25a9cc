package runner

import (
	"context"
	"testing"
	"time"

	"github.com/loadforge/engine/internal/config"
	"github.com/loadforge/engine/internal/task"
)

func fastTiming() Timing {
	return Timing{
		ControlPeriod:   10 * time.Millisecond,
		Backoff:         2 * time.Millisecond,
		ExecutorGrace:   500 * time.Millisecond,
		ShutdownTimeout: 500 * time.Millisecond,
		AwaitCompletion: 500 * time.Millisecond,
		SubmitBackoff:   time.Millisecond,
	}
}

func concurrencyCfg() *config.RunConfig {
	return &config.RunConfig{
		Mode:                   config.ModeConcurrencyBased,
		StartingConcurrency:    2,
		MaxConcurrency:         5,
		RampStrategyType:       config.RampStrategyLinear,
		RampDurationSeconds:    1,
		SustainDurationSeconds: 0,
		TestDurationSeconds:    1,
	}
}

func TestConcurrencyRunner_ProducesNonEmptySnapshot(t *testing.T) {
	r, err := NewConcurrencyRunner(concurrencyCfg(), task.NewSleepTask(time.Millisecond), fastTiming())
	if err != nil {
		t.Fatalf("NewConcurrencyRunner: %v", err)
	}

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Snapshot.TotalTasks == 0 {
		t.Fatal("expected at least one task to be recorded over a 1s run")
	}
	if result.ActualDuration <= 0 {
		t.Fatal("expected a positive ActualDuration")
	}
}

func TestConcurrencyRunner_RejectsNilFactory(t *testing.T) {
	if _, err := NewConcurrencyRunner(concurrencyCfg(), nil, fastTiming()); err == nil {
		t.Fatal("expected error for nil factory")
	}
}

func TestConcurrencyRunner_RejectsNilConfig(t *testing.T) {
	if _, err := NewConcurrencyRunner(nil, task.NewSleepTask(0), fastTiming()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestConcurrencyRunner_StopEndsRunEarly(t *testing.T) {
	cfg := concurrencyCfg()
	cfg.TestDurationSeconds = 60
	r, err := NewConcurrencyRunner(cfg, task.NewSleepTask(time.Millisecond), fastTiming())
	if err != nil {
		t.Fatalf("NewConcurrencyRunner: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		r.Stop()
	}()

	start := time.Now()
	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Stop() did not end the run early; took %v", time.Since(start))
	}
	if result.Snapshot.TotalTasks == 0 {
		t.Fatal("expected some tasks to have run before Stop took effect")
	}
}

func TestConcurrencyRunner_ContextCancellationEndsRun(t *testing.T) {
	cfg := concurrencyCfg()
	cfg.TestDurationSeconds = 60
	r, err := NewConcurrencyRunner(cfg, task.NewSleepTask(time.Millisecond), fastTiming())
	if err != nil {
		t.Fatalf("NewConcurrencyRunner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("context cancellation did not end the run promptly; took %v", time.Since(start))
	}
}

func rateCfg() *config.RunConfig {
	return &config.RunConfig{
		Mode:                config.ModeRateLimited,
		StartingConcurrency: 1,
		MaxConcurrency:      20,
		RampStrategyType:    config.RampStrategyLinear,
		RampDurationSeconds: 1,
		TestDurationSeconds: 1,
		MaxTPSLimit:         50,
	}
}

func TestRateRunner_ProducesNonEmptySnapshot(t *testing.T) {
	r, err := NewRateRunner(rateCfg(), task.NewSleepTask(0), fastTiming())
	if err != nil {
		t.Fatalf("NewRateRunner: %v", err)
	}
	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Snapshot.TotalTasks == 0 {
		t.Fatal("expected at least one task recorded over a 1s rate-based run")
	}
}

func TestNewRateRunner_RejectsMissingTPSLimit(t *testing.T) {
	cfg := rateCfg()
	cfg.MaxTPSLimit = 0
	if _, err := NewRateRunner(cfg, task.NewSleepTask(0), fastTiming()); err == nil {
		t.Fatal("expected error when MaxTPSLimit is unset")
	}
}

func TestRunner_SatisfiesInterface(t *testing.T) {
	var _ Runner = (*ConcurrencyRunner)(nil)
	var _ Runner = (*RateRunner)(nil)
}
