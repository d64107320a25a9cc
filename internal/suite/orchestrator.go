package suite

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/loadforge/engine/internal/runner"
)

// Scenario names a runner.Runner together with the label its TestResult
// should be reported under — the minimal unit an Orchestrator schedules.
type Scenario struct {
	Name   string
	Runner runner.Runner
}

// ScenarioResult pairs a Scenario's name with its outcome or error.
type ScenarioResult struct {
	Name   string
	Result runner.TestResult
	Err    error
}

// Orchestrator runs ordered or parallel scenarios that share one
// CorrelationContext. The core itself only needs to know the context is
// opaque and thread-safe.
type Orchestrator struct {
	Context *CorrelationContext

	mu       sync.Mutex
	cronJobs *cron.Cron
}

// NewOrchestrator builds an Orchestrator with a fresh CorrelationContext.
func NewOrchestrator() (*Orchestrator, error) {
	ctx, err := NewCorrelationContext(DefaultContextCapacity)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{Context: ctx}, nil
}

// RunSequential runs each scenario in order, stopping at the first one
// whose context is cancelled. Scenarios still run back-to-back even if an
// earlier one's runner reports a construction-level error — only a
// Runner's own construction can fail; a run itself always yields a
// snapshot.
func (o *Orchestrator) RunSequential(ctx context.Context, scenarios ...Scenario) ([]ScenarioResult, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("suite: RunSequential requires at least one scenario")
	}
	results := make([]ScenarioResult, 0, len(scenarios))
	for _, s := range scenarios {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		res, err := s.Runner.Run(ctx)
		results = append(results, ScenarioResult{Name: s.Name, Result: res, Err: err})
	}
	return results, nil
}

// RunParallel runs every scenario concurrently and waits for all of them
// to finish, sharing o.Context across the whole batch.
func (o *Orchestrator) RunParallel(ctx context.Context, scenarios ...Scenario) ([]ScenarioResult, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("suite: RunParallel requires at least one scenario")
	}
	results := make([]ScenarioResult, len(scenarios))
	var wg sync.WaitGroup
	wg.Add(len(scenarios))
	for i, s := range scenarios {
		go func(i int, s Scenario) {
			defer wg.Done()
			res, err := s.Runner.Run(ctx)
			results[i] = ScenarioResult{Name: s.Name, Result: res, Err: err}
		}(i, s)
	}
	wg.Wait()
	return results, nil
}

// Schedule re-triggers buildScenario on cronExpr (standard five-field cron
// syntax) using robfig/cron. Each tick runs the freshly built scenario to
// completion in its own goroutine; onResult receives every completed run.
// Returns a stop function.
func (o *Orchestrator) Schedule(cronExpr string, buildScenario func() Scenario, onResult func(ScenarioResult)) (stop func(), err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cronJobs == nil {
		o.cronJobs = cron.New()
		o.cronJobs.Start()
	}

	entryID, err := o.cronJobs.AddFunc(cronExpr, func() {
		s := buildScenario()
		res, runErr := s.Runner.Run(context.Background())
		if onResult != nil {
			onResult(ScenarioResult{Name: s.Name, Result: res, Err: runErr})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("suite: invalid cron expression %q: %w", cronExpr, err)
	}

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.cronJobs != nil {
			o.cronJobs.Remove(entryID)
		}
	}, nil
}

// Close stops the cron scheduler, if one was started via Schedule.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cronJobs != nil {
		o.cronJobs.Stop()
	}
}
