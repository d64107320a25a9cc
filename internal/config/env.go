// Package config handles environment-based configuration loading and the
// run configuration envelope consumed by runner constructors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects how offered load is driven.
type Mode string

const (
	ModeConcurrencyBased Mode = "CONCURRENCY_BASED"
	ModeRateLimited      Mode = "RATE_LIMITED"
)

func (m Mode) IsValid() bool {
	return m == ModeConcurrencyBased || m == ModeRateLimited
}

// RampStrategyType selects which RampStrategy variant a RunConfig describes.
type RampStrategyType string

const (
	RampStrategyStep   RampStrategyType = "STEP"
	RampStrategyLinear RampStrategyType = "LINEAR"
)

func (t RampStrategyType) IsValid() bool {
	return t == RampStrategyStep || t == RampStrategyLinear
}

// RunConfig is the configuration envelope: everything a runner constructor
// needs to assemble a ramp strategy, a concurrency controller, and (in
// rate-based/hybrid mode) a TPS ceiling. It is never loaded from a file;
// LoadEnvConfig exists only as a convenient way to drive the cmd/loadforge
// CLI from the environment.
type RunConfig struct {
	Mode Mode

	StartingConcurrency int32
	MaxConcurrency      int32

	RampStrategyType       RampStrategyType
	RampStep               int32         // STEP only
	RampIntervalSeconds    int64         // STEP only
	RampDurationSeconds    int64         // LINEAR only
	SustainDurationSeconds int64

	TestDurationSeconds int64

	MaxTPSLimit int64 // only meaningful when Mode == ModeRateLimited; 0 means unset

	// RateRampUpSeconds is the warm-up duration for the standalone
	// rate-based runner (NewRateRunner), not the hybrid RATE_LIMITED mode.
	// 0 means no warm-up: every permit is paced at the target rate from
	// the first tick.
	RateRampUpSeconds int64

	TaskType      string
	TaskParameter string
}

// LoadEnvConfig reads environment variables and returns a validated
// RunConfig. Returns an error if any required variable is missing or any
// value is invalid — construction errors are eager and the caller is at
// fault, not deferred to first use.
func LoadEnvConfig() (*RunConfig, error) {
	cfg := &RunConfig{}
	var errs []string

	cfg.Mode = Mode(envStr("LOADFORGE_MODE", string(ModeConcurrencyBased)))
	if !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Sprintf("LOADFORGE_MODE: invalid value %q (allowed: %s, %s)", cfg.Mode, ModeConcurrencyBased, ModeRateLimited))
	}

	cfg.StartingConcurrency = int32(envInt("LOADFORGE_STARTING_CONCURRENCY", 10, &errs))
	cfg.MaxConcurrency = int32(envInt("LOADFORGE_MAX_CONCURRENCY", 100, &errs))

	cfg.RampStrategyType = RampStrategyType(envStr("LOADFORGE_RAMP_STRATEGY", string(RampStrategyLinear)))
	if !cfg.RampStrategyType.IsValid() {
		errs = append(errs, fmt.Sprintf("LOADFORGE_RAMP_STRATEGY: invalid value %q (allowed: %s, %s)", cfg.RampStrategyType, RampStrategyStep, RampStrategyLinear))
	}

	cfg.RampStep = int32(envInt("LOADFORGE_RAMP_STEP", 10, &errs))
	cfg.RampIntervalSeconds = int64(envInt("LOADFORGE_RAMP_INTERVAL_SECONDS", 30, &errs))
	cfg.RampDurationSeconds = int64(envInt("LOADFORGE_RAMP_DURATION_SECONDS", 60, &errs))
	cfg.SustainDurationSeconds = int64(envInt("LOADFORGE_SUSTAIN_DURATION_SECONDS", 0, &errs))
	cfg.TestDurationSeconds = int64(envInt("LOADFORGE_TEST_DURATION_SECONDS", 60, &errs))
	cfg.MaxTPSLimit = int64(envInt("LOADFORGE_MAX_TPS_LIMIT", 0, &errs))
	cfg.RateRampUpSeconds = int64(envInt("LOADFORGE_RATE_RAMPUP_SECONDS", 0, &errs))

	cfg.TaskType = envStr("LOADFORGE_TASK_TYPE", "sleep")
	cfg.TaskParameter = envStr("LOADFORGE_TASK_PARAMETER", "")

	// --- Validation ---
	if cfg.StartingConcurrency < 1 || cfg.StartingConcurrency > 10_000 {
		errs = append(errs, fmt.Sprintf("LOADFORGE_STARTING_CONCURRENCY: must be in [1, 10000], got %d", cfg.StartingConcurrency))
	}
	if cfg.MaxConcurrency < 1 || cfg.MaxConcurrency > 50_000 {
		errs = append(errs, fmt.Sprintf("LOADFORGE_MAX_CONCURRENCY: must be in [1, 50000], got %d", cfg.MaxConcurrency))
	}
	if cfg.MaxConcurrency < cfg.StartingConcurrency {
		errs = append(errs, "LOADFORGE_MAX_CONCURRENCY must be >= LOADFORGE_STARTING_CONCURRENCY")
	}
	if cfg.SustainDurationSeconds < 0 {
		errs = append(errs, "LOADFORGE_SUSTAIN_DURATION_SECONDS must be >= 0")
	}
	if cfg.RateRampUpSeconds < 0 {
		errs = append(errs, "LOADFORGE_RATE_RAMPUP_SECONDS must be >= 0")
	}
	if cfg.TestDurationSeconds < 1 || cfg.TestDurationSeconds > 86_400 {
		errs = append(errs, fmt.Sprintf("LOADFORGE_TEST_DURATION_SECONDS: must be in [1, 86400], got %d", cfg.TestDurationSeconds))
	}
	if cfg.Mode == ModeRateLimited {
		if cfg.MaxTPSLimit < 1 || cfg.MaxTPSLimit > 100_000 {
			errs = append(errs, fmt.Sprintf("LOADFORGE_MAX_TPS_LIMIT: must be in [1, 100000] when mode is %s, got %d", ModeRateLimited, cfg.MaxTPSLimit))
		}
	}
	if cfg.RampStrategyType == RampStrategyStep {
		validatePositive("LOADFORGE_RAMP_STEP", int(cfg.RampStep), &errs)
		validatePositive("LOADFORGE_RAMP_INTERVAL_SECONDS", int(cfg.RampIntervalSeconds), &errs)
	}
	if cfg.RampStrategyType == RampStrategyLinear {
		validatePositive("LOADFORGE_RAMP_DURATION_SECONDS", int(cfg.RampDurationSeconds), &errs)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

// ControlPeriod, Backoff, and the various grace periods are construction
// parameters on the components that use them, never process-wide mutable
// state, but the defaults live here so cmd/loadforge and tests share one
// source of truth.
const (
	DefaultControlPeriod   = 100 * time.Millisecond
	DefaultBackoff         = 10 * time.Millisecond
	DefaultExecutorGrace   = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultAwaitCompletion = 30 * time.Second
)
