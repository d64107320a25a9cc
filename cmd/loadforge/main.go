// Command loadforge drives a single load-generation run from environment
// configuration. Suite orchestration, HTTP control surfaces, and
// file-based configuration are out of scope for this binary — it is the
// single-node composition root the core's unit tests exercise indirectly.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loadforge/engine/internal/buildinfo"
	"github.com/loadforge/engine/internal/config"
	"github.com/loadforge/engine/internal/runner"
	"github.com/loadforge/engine/internal/task"
)

func main() {
	cfg, err := config.LoadEnvConfig()
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("loadforge %s (commit %s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)
	log.Printf("mode=%s strategy=%s starting=%d max=%d duration=%ds",
		cfg.Mode, cfg.RampStrategyType, cfg.StartingConcurrency, cfg.MaxConcurrency, cfg.TestDurationSeconds)

	factory, err := buildTaskFactory(cfg)
	if err != nil {
		fatalf("task factory: %v", err)
	}

	r, err := buildRunner(cfg, factory)
	if err != nil {
		fatalf("runner construction: %v", err)
	}
	log.Println("runner constructed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	resultCh := make(chan runRunResult, 1)
	go func() {
		result, err := r.Run(ctx)
		resultCh <- runRunResult{result: result, err: err}
	}()

	var result runner.TestResult
	select {
	case sig := <-quit:
		log.Printf("received signal %s, stopping run...", sig)
		r.Stop()
		result = (<-resultCh).result
	case rr := <-resultCh:
		if rr.err != nil {
			fatalf("run: %v", rr.err)
		}
		result = rr.result
	}

	printSnapshot(result)
}

type runRunResult struct {
	result runner.TestResult
	err    error
}

func buildTaskFactory(cfg *config.RunConfig) (task.Factory, error) {
	switch cfg.TaskType {
	case "sleep", "":
		d, err := time.ParseDuration(nonEmpty(cfg.TaskParameter, "10ms"))
		if err != nil {
			return nil, fmt.Errorf("invalid sleep duration %q: %w", cfg.TaskParameter, err)
		}
		return task.NewSleepTask(d), nil
	case "cpu":
		iterations := 10_000
		if cfg.TaskParameter != "" {
			if _, err := fmt.Sscanf(cfg.TaskParameter, "%d", &iterations); err != nil {
				return nil, fmt.Errorf("invalid cpu iteration count %q: %w", cfg.TaskParameter, err)
			}
		}
		return task.NewCPUTask(iterations), nil
	case "flaky":
		rate := 0.9
		if cfg.TaskParameter != "" {
			if _, err := fmt.Sscanf(cfg.TaskParameter, "%f", &rate); err != nil {
				return nil, fmt.Errorf("invalid success rate %q: %w", cfg.TaskParameter, err)
			}
		}
		return task.NewFlakyTask(rate), nil
	default:
		return nil, fmt.Errorf("unknown LOADFORGE_TASK_TYPE %q (supported: sleep, cpu, flaky)", cfg.TaskType)
	}
}

// buildRunner picks the runner flavor for cfg.Mode. Both CONCURRENCY_BASED
// and RATE_LIMITED are concurrency-driven: the ramp strategy and
// VirtualUserManager shape offered load in both, and RATE_LIMITED layers a
// TPS ceiling on top via the control loop's throttle-and-back-off check.
// The older pure-rate-paced runner (NewRateRunner) isn't reachable through
// Mode at all — it predates the hybrid controller and is kept only for
// whatever already constructs it directly.
func buildRunner(cfg *config.RunConfig, factory task.Factory) (runner.Runner, error) {
	timing := runner.DefaultTiming()
	switch cfg.Mode {
	case config.ModeConcurrencyBased, config.ModeRateLimited:
		return runner.NewConcurrencyRunner(cfg, factory, timing)
	default:
		return nil, fmt.Errorf("unsupported mode %q", cfg.Mode)
	}
}

func printSnapshot(result runner.TestResult) {
	s := result.Snapshot
	fmt.Printf("\n--- run %s complete (actual duration %s) ---\n", result.RunID, result.ActualDuration)
	fmt.Printf("total=%d success=%d failed=%d successRate=%.2f%% tps=%.1f avgLatencyMs=%.2f\n",
		s.TotalTasks, s.SuccessfulTasks, s.FailedTasks, s.SuccessRate*100, s.TPS, s.AvgLatencyMs)
	fmt.Printf("latency percentiles (ms): p50=%.2f p75=%.2f p90=%.2f p95=%.2f p99=%.2f p99.9=%.2f\n",
		nsToMs(s.Percentiles.P50), nsToMs(s.Percentiles.P75), nsToMs(s.Percentiles.P90),
		nsToMs(s.Percentiles.P95), nsToMs(s.Percentiles.P99), nsToMs(s.Percentiles.P999))
	if len(s.ErrorCounts) > 0 {
		fmt.Println("errors:")
		for msg, count := range s.ErrorCounts {
			fmt.Printf("  %-40s %d\n", msg, count)
		}
	}
}

func nsToMs(ns int64) float64 { return float64(ns) / 1e6 }

func nonEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
