package dr

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CheckResult holds the outcome of one probe round for one region:
// four independent sub-checks plus the observed latency.
type CheckResult struct {
	Database bool          `json:"database"`
	API      bool          `json:"api"`
	Storage  bool          `json:"storage"`
	Cache    bool          `json:"cache"`
	Latency  time.Duration `json:"latency"`
}

// FailedCount returns how many sub-checks failed.
func (c CheckResult) FailedCount() int {
	failed := 0
	for _, ok := range []bool{c.Database, c.API, c.Storage, c.Cache} {
		if !ok {
			failed++
		}
	}
	return failed
}

// ProbeTarget identifies what a prober should reach.
type ProbeTarget struct {
	ID                string
	APIEndpoint       string
	DatastoreEndpoint string
}

// Prober performs the actual reachability checks for one region.
// Returning an error means the region could not be probed at all
// (distinct from a probe that ran and found failing checks).
type Prober interface {
	Probe(ctx context.Context, target ProbeTarget) (CheckResult, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, target ProbeTarget) (CheckResult, error)

func (f ProberFunc) Probe(ctx context.Context, target ProbeTarget) (CheckResult, error) {
	return f(ctx, target)
}

// HTTPProber probes regions over HTTP. Each sub-check hits a
// component-scoped health path on the region's API endpoint and passes
// on a 2xx response. The caller's context bounds the whole probe.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber returns a prober with a dedicated HTTP client.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{Timeout: timeout},
	}
}

var subChecks = []string{"database", "api", "storage", "cache"}

// Probe runs the four sub-checks concurrently against the target.
func (p *HTTPProber) Probe(ctx context.Context, target ProbeTarget) (CheckResult, error) {
	if target.APIEndpoint == "" {
		return CheckResult{}, fmt.Errorf("dr: region %s has no api endpoint", target.ID)
	}

	start := time.Now()
	results := make([]bool, len(subChecks))
	errs := make([]error, len(subChecks))

	var wg sync.WaitGroup
	for i, check := range subChecks {
		wg.Add(1)
		go func(i int, check string) {
			defer wg.Done()
			results[i], errs[i] = p.checkOne(ctx, target.APIEndpoint, check)
		}(i, check)
	}
	wg.Wait()

	result := CheckResult{
		Database: results[0],
		API:      results[1],
		Storage:  results[2],
		Cache:    results[3],
		Latency:  time.Since(start),
	}

	// An unreachable region fails every check with a transport error.
	allTransportErrors := true
	for i := range subChecks {
		if results[i] || errs[i] == nil {
			allTransportErrors = false
			break
		}
	}
	if allTransportErrors {
		return CheckResult{}, fmt.Errorf("dr: region %s unreachable: %w", target.ID, errs[0])
	}

	return result, nil
}

func (p *HTTPProber) checkOne(ctx context.Context, endpoint, check string) (bool, error) {
	url := fmt.Sprintf("%s/healthz/%s", endpoint, check)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// ChaosProber wraps another prober and forces every sub-check for one
// designated region to fail. Used to validate failover behavior; not
// reachable when the production flag is set in configuration.
type ChaosProber struct {
	mu     sync.RWMutex
	target string
	next   Prober
}

// NewChaosProber wraps next with chaos injection disabled.
func NewChaosProber(next Prober) *ChaosProber {
	return &ChaosProber{next: next}
}

// Enable forces all checks for the given region to fail.
func (c *ChaosProber) Enable(regionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = regionID
}

// Disable clears the chaos target.
func (c *ChaosProber) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = ""
}

// Target returns the region currently under chaos, or "".
func (c *ChaosProber) Target() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Probe fails every check for the chaos target and delegates otherwise.
func (c *ChaosProber) Probe(ctx context.Context, target ProbeTarget) (CheckResult, error) {
	c.mu.RLock()
	chaosTarget := c.target
	c.mu.RUnlock()

	if chaosTarget != "" && chaosTarget == target.ID {
		return CheckResult{}, nil
	}
	return c.next.Probe(ctx, target)
}
