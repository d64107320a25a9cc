// Package ramp implements pure elapsed-time-to-target-concurrency
// functions. Both variants are concrete types behind the Strategy
// interface rather than an inheritance hierarchy.
package ramp

import "fmt"

// Strategy maps elapsed seconds since a run started to the target
// concurrency at that instant. Implementations are pure and immutable after
// construction.
type Strategy interface {
	// TargetConcurrency returns the desired virtual-user count at
	// elapsedSeconds into the run.
	TargetConcurrency(elapsedSeconds int64) int32

	// StartingConcurrency is the target at elapsed time 0.
	StartingConcurrency() int32

	// MaxConcurrency is the ceiling the strategy never exceeds.
	MaxConcurrency() int32

	// Description is a short human-readable summary, e.g. for logging.
	Description() string
}

// Step implements a staircase ramp: concurrency increases by RampStep
// every RampIntervalSeconds, capped at MaxConc, and holds at MaxConc for
// SustainDurationSeconds.
type Step struct {
	startingConcurrency    int32
	rampStep               int32
	rampIntervalSeconds    int64
	maxConcurrency         int32
	sustainDurationSeconds int64
}

// NewStep validates and constructs a Step ramp strategy. Construction
// errors are eager — the caller is at fault.
func NewStep(startingConcurrency, rampStep, maxConcurrency int32, rampIntervalSeconds, sustainDurationSeconds int64) (*Step, error) {
	if startingConcurrency <= 0 {
		return nil, fmt.Errorf("ramp: startingConcurrency must be positive, got %d", startingConcurrency)
	}
	if maxConcurrency < startingConcurrency {
		return nil, fmt.Errorf("ramp: maxConcurrency (%d) must be >= startingConcurrency (%d)", maxConcurrency, startingConcurrency)
	}
	if rampStep <= 0 {
		return nil, fmt.Errorf("ramp: rampStep must be positive, got %d", rampStep)
	}
	if rampIntervalSeconds <= 0 {
		return nil, fmt.Errorf("ramp: rampIntervalSeconds must be positive, got %d", rampIntervalSeconds)
	}
	if sustainDurationSeconds < 0 {
		return nil, fmt.Errorf("ramp: sustainDurationSeconds must be >= 0, got %d", sustainDurationSeconds)
	}
	return &Step{
		startingConcurrency:    startingConcurrency,
		rampStep:               rampStep,
		rampIntervalSeconds:    rampIntervalSeconds,
		maxConcurrency:         maxConcurrency,
		sustainDurationSeconds: sustainDurationSeconds,
	}, nil
}

func (s *Step) TargetConcurrency(elapsedSeconds int64) int32 {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	steps := elapsedSeconds / s.rampIntervalSeconds
	target := s.startingConcurrency + int32(steps)*s.rampStep
	if target > s.maxConcurrency {
		target = s.maxConcurrency
	}
	return target
}

func (s *Step) StartingConcurrency() int32 { return s.startingConcurrency }
func (s *Step) MaxConcurrency() int32      { return s.maxConcurrency }
func (s *Step) Description() string {
	return fmt.Sprintf("step(start=%d,step=%d,interval=%ds,max=%d,sustain=%ds)",
		s.startingConcurrency, s.rampStep, s.rampIntervalSeconds, s.maxConcurrency, s.sustainDurationSeconds)
}

// Linear implements a linear ramp: concurrency interpolates linearly from
// StartingConcurrency to MaxConcurrency over RampDurationSeconds, then
// holds at MaxConcurrency.
type Linear struct {
	startingConcurrency    int32
	maxConcurrency         int32
	rampDurationSeconds    int64
	sustainDurationSeconds int64
}

// NewLinear validates and constructs a Linear ramp strategy.
func NewLinear(startingConcurrency, maxConcurrency int32, rampDurationSeconds, sustainDurationSeconds int64) (*Linear, error) {
	if startingConcurrency <= 0 {
		return nil, fmt.Errorf("ramp: startingConcurrency must be positive, got %d", startingConcurrency)
	}
	if maxConcurrency < startingConcurrency {
		return nil, fmt.Errorf("ramp: maxConcurrency (%d) must be >= startingConcurrency (%d)", maxConcurrency, startingConcurrency)
	}
	if rampDurationSeconds <= 0 {
		return nil, fmt.Errorf("ramp: rampDurationSeconds must be positive, got %d", rampDurationSeconds)
	}
	if sustainDurationSeconds < 0 {
		return nil, fmt.Errorf("ramp: sustainDurationSeconds must be >= 0, got %d", sustainDurationSeconds)
	}
	return &Linear{
		startingConcurrency:    startingConcurrency,
		maxConcurrency:         maxConcurrency,
		rampDurationSeconds:    rampDurationSeconds,
		sustainDurationSeconds: sustainDurationSeconds,
	}, nil
}

func (l *Linear) TargetConcurrency(elapsedSeconds int64) int32 {
	if elapsedSeconds <= 0 {
		return l.startingConcurrency
	}
	if elapsedSeconds >= l.rampDurationSeconds {
		return l.maxConcurrency
	}
	span := l.maxConcurrency - l.startingConcurrency
	delta := roundDiv(int64(span)*elapsedSeconds, l.rampDurationSeconds)
	return l.startingConcurrency + int32(delta)
}

func (l *Linear) StartingConcurrency() int32 { return l.startingConcurrency }
func (l *Linear) MaxConcurrency() int32      { return l.maxConcurrency }
func (l *Linear) Description() string {
	return fmt.Sprintf("linear(start=%d,max=%d,rampDuration=%ds,sustain=%ds)",
		l.startingConcurrency, l.maxConcurrency, l.rampDurationSeconds, l.sustainDurationSeconds)
}

// roundDiv computes round(a/b) using integer arithmetic, rounding half
// away from zero.
func roundDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	if a >= 0 {
		return (a + b/2) / b
	}
	return -((-a + b/2) / b)
}
