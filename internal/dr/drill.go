package dr

import (
	"context"
	"sync"
	"time"
)

// FailureMode is the kind of fault a drill injects.
type FailureMode string

const (
	FailureComplete FailureMode = "complete" // region fully down until restored
	FailureFlapping FailureMode = "flapping" // alternating down/up rounds
)

// DrillScenario describes one chaos drill against a region.
type DrillScenario struct {
	Name        string
	Description string
	Target      string
	Failure     FailureMode
	Rounds      int
	Expect      DrillExpectation
}

// DrillExpectation is what a passing drill must show.
type DrillExpectation struct {
	FailoverTriggered bool
}

// DrillResult is the outcome of one executed scenario.
type DrillResult struct {
	Scenario          DrillScenario
	FailoverTriggered bool
	ObjectiveMet      bool
	Duration          time.Duration
	Passed            bool
	ExecutedAt        time.Time
}

// DrillReport summarizes a drill run.
type DrillReport struct {
	GeneratedAt         time.Time
	Total               int
	Passed              int
	Failed              int
	AverageFailover     time.Duration
	ObjectiveCompliance float64
	Results             []DrillResult
}

// DrillRunner exercises failover behavior through the chaos injector,
// driving monitoring rounds directly instead of waiting on the timer.
type DrillRunner struct {
	controller *Controller
	objective  time.Duration

	mu        sync.Mutex
	scenarios []DrillScenario
	results   []DrillResult
}

// NewDrillRunner creates a runner. objective is the failover duration
// target a drill must meet; zero means the one-second default.
func NewDrillRunner(controller *Controller, objective time.Duration) *DrillRunner {
	if objective <= 0 {
		objective = time.Second
	}
	return &DrillRunner{controller: controller, objective: objective}
}

// AddScenario registers a scenario for the next run.
func (r *DrillRunner) AddScenario(s DrillScenario) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenarios = append(r.scenarios, s)
}

// ExecuteScenario runs one scenario and restores the target afterward.
func (r *DrillRunner) ExecuteScenario(ctx context.Context, s DrillScenario) DrillResult {
	result := DrillResult{Scenario: s, ExecutedAt: time.Now()}

	before := ""
	if primary, ok := r.controller.registry.Primary(); ok {
		before = primary.ID
	}

	rounds := s.Rounds
	if rounds <= 0 {
		rounds = r.controller.monitor.cfg.FailureThreshold + 1
	}

	start := time.Now()
	for i := 0; i < rounds; i++ {
		switch s.Failure {
		case FailureFlapping:
			if i%2 == 0 {
				r.controller.chaos.Enable(s.Target)
			} else {
				r.controller.chaos.Disable()
			}
		default:
			r.controller.chaos.Enable(s.Target)
		}
		r.controller.RunRound(ctx)
		r.controller.engine.Wait()
	}

	after := ""
	if primary, ok := r.controller.registry.Primary(); ok {
		after = primary.ID
	}
	result.FailoverTriggered = after != "" && after != before

	if result.FailoverTriggered {
		events := r.controller.engine.Events(1)
		if len(events) == 1 {
			result.Duration = events[0].Duration
			result.ObjectiveMet = events[0].Duration <= r.objective
		}
	} else {
		result.Duration = time.Since(start)
	}

	result.Passed = result.FailoverTriggered == s.Expect.FailoverTriggered
	r.restore(ctx)

	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()

	return result
}

// RunAll executes every registered scenario in order.
func (r *DrillRunner) RunAll(ctx context.Context) {
	r.mu.Lock()
	scenarios := make([]DrillScenario, len(r.scenarios))
	copy(scenarios, r.scenarios)
	r.mu.Unlock()

	for _, s := range scenarios {
		select {
		case <-ctx.Done():
			return
		default:
			r.ExecuteScenario(ctx, s)
		}
	}
}

// restore lifts chaos and feeds clean rounds until statuses settle.
func (r *DrillRunner) restore(ctx context.Context) {
	r.controller.chaos.Disable()
	for i := 0; i < r.controller.monitor.cfg.RecoveryThreshold+1; i++ {
		r.controller.RunRound(ctx)
		r.controller.engine.Wait()
	}
}

// Report summarizes all results so far.
func (r *DrillRunner) Report() DrillReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := DrillReport{
		GeneratedAt: time.Now(),
		Total:       len(r.results),
		Results:     make([]DrillResult, len(r.results)),
	}
	copy(report.Results, r.results)

	var totalDuration time.Duration
	objectiveMet := 0
	for _, result := range r.results {
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		totalDuration += result.Duration
		if result.ObjectiveMet {
			objectiveMet++
		}
	}

	if report.Total > 0 {
		report.AverageFailover = totalDuration / time.Duration(report.Total)
		report.ObjectiveCompliance = float64(objectiveMet) / float64(report.Total) * 100
	}
	return report
}
