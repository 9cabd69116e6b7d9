package dr

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeProber scripts per-region probe outcomes.
type fakeProber struct {
	mu      sync.Mutex
	results map[string]CheckResult
	errs    map[string]error
	delays  map[string]time.Duration
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		results: make(map[string]CheckResult),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

func allChecksPass() CheckResult {
	return CheckResult{
		Database: true,
		API:      true,
		Storage:  true,
		Cache:    true,
		Latency:  10 * time.Millisecond,
	}
}

func (f *fakeProber) Probe(ctx context.Context, target ProbeTarget) (CheckResult, error) {
	f.mu.Lock()
	result, scripted := f.results[target.ID]
	err := f.errs[target.ID]
	delay := f.delays[target.ID]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return CheckResult{}, ctx.Err()
		}
	}
	if err != nil {
		return CheckResult{}, err
	}
	if !scripted {
		return allChecksPass(), nil
	}
	return result, nil
}

func (f *fakeProber) setResult(id string, result CheckResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = result
	delete(f.errs, id)
}

func (f *fakeProber) setUnreachable(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = errors.New("connection refused")
}

func (f *fakeProber) setHealthy(id string) {
	f.setResult(id, allChecksPass())
}

func (f *fakeProber) setDelay(id string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[id] = delay
}

func threeRegions() []RegionConfig {
	return []RegionConfig{
		{ID: "us-east", Name: "US East", APIEndpoint: "https://us-east.example.com", Priority: 1},
		{ID: "us-west", Name: "US West", APIEndpoint: "https://us-west.example.com", Priority: 2},
		{ID: "eu-central", Name: "EU Central", APIEndpoint: "https://eu-central.example.com", Priority: 3},
	}
}

func testControllerConfig() ControllerConfig {
	return ControllerConfig{
		Regions: threeRegions(),
		Primary: "us-east",
		Monitor: MonitorConfig{
			Interval:          10 * time.Millisecond,
			CheckTimeout:      100 * time.Millisecond,
			FailureThreshold:  3,
			RecoveryThreshold: 2,
			MaxReplicationLag: time.Second,
		},
		Failover: EngineConfig{
			Auto:              true,
			Cooldown:          time.Hour,
			TransitionTimeout: 500 * time.Millisecond,
		},
	}
}
