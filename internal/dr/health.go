package dr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/drctl/internal/alerting"
	"github.com/FairForge/drctl/internal/metrics"
	"go.uber.org/zap"
)

// HealthCheck is the immutable record of one probe round for one region.
type HealthCheck struct {
	RegionID  string       `json:"region_id"`
	Timestamp time.Time    `json:"timestamp"`
	Status    RegionStatus `json:"status"`
	Checks    CheckResult  `json:"checks"`
	Errors    []string     `json:"errors,omitempty"`
}

// historyCapacity bounds per-region health-check history.
const historyCapacity = 100

// historyRing is a fixed-capacity ring buffer of health checks with a
// single writer (the monitor) and concurrent readers.
type historyRing struct {
	entries []HealthCheck
	next    int
	full    bool
}

func newHistoryRing() *historyRing {
	return &historyRing{entries: make([]HealthCheck, historyCapacity)}
}

func (h *historyRing) append(check HealthCheck) {
	h.entries[h.next] = check
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// recent returns up to limit entries in chronological order, newest last.
func (h *historyRing) recent(limit int) []HealthCheck {
	size := h.next
	if h.full {
		size = len(h.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]HealthCheck, 0, limit)
	start := h.next - limit
	if !h.full && start < 0 {
		start = 0
	}
	for i := 0; i < limit; i++ {
		idx := (start + i + len(h.entries)) % len(h.entries)
		result = append(result, h.entries[idx])
	}
	return result
}

// MonitorConfig tunes the health monitor.
type MonitorConfig struct {
	Interval          time.Duration
	CheckTimeout      time.Duration
	FailureThreshold  int
	RecoveryThreshold int
	MaxReplicationLag time.Duration
}

// DefaultMonitorConfig returns the reference defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:          10 * time.Second,
		CheckTimeout:      5 * time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
		MaxReplicationLag: time.Second,
	}
}

// hysteresis holds the consecutive-round counters for one region.
type hysteresis struct {
	bad  int
	good int
}

// Monitor probes every region on a fixed interval, stabilizes statuses
// with hysteresis and hands each completed round to the failover
// engine. Probe failures are contained: one region's failure never
// aborts the round for the others.
type Monitor struct {
	cfg      MonitorConfig
	registry *Registry
	prober   Prober
	tracker  *ReplicationTracker
	alerter  *alerting.Alerter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// onRound runs synchronously after all hysteresis updates of a
	// round are applied, never on partially-updated state.
	onRound func(ctx context.Context, round []HealthCheck)

	mu        sync.RWMutex
	histories map[string]*historyRing
	counters  map[string]*hysteresis

	loopMu  sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor wires a monitor. Alerter and metrics may be nil.
func NewMonitor(cfg MonitorConfig, registry *Registry, prober Prober, tracker *ReplicationTracker,
	alerter *alerting.Alerter, m *metrics.Metrics, logger *zap.Logger) *Monitor {

	def := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = def.RecoveryThreshold
	}
	if cfg.MaxReplicationLag <= 0 {
		cfg.MaxReplicationLag = def.MaxReplicationLag
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		cfg:       cfg,
		registry:  registry,
		prober:    prober,
		tracker:   tracker,
		alerter:   alerter,
		metrics:   m,
		logger:    logger,
		histories: make(map[string]*historyRing),
		counters:  make(map[string]*hysteresis),
	}
}

// SetRoundHandler registers the failover engine's evaluation step.
func (m *Monitor) SetRoundHandler(fn func(ctx context.Context, round []HealthCheck)) {
	m.onRound = fn
}

// Start begins the periodic monitoring loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.running {
		return fmt.Errorf("dr: monitoring already active")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.wg.Add(1)

	go m.loop(ctx, m.stopCh)
	return nil
}

// Stop stops scheduling new rounds. A round already in flight completes
// naturally; use Wait to block until it has.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

// Wait blocks until the monitoring loop has fully exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Running reports whether the loop is scheduling rounds.
func (m *Monitor) Running() bool {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.RunRound(ctx)
		}
	}
}

// RunRound probes all regions concurrently, applies hysteresis, then
// hands the round to the failover engine and evaluates lag alerts.
func (m *Monitor) RunRound(ctx context.Context) []HealthCheck {
	regions := m.registry.All()

	type outcome struct {
		region Region
		result CheckResult
		err    error
	}
	outcomes := make([]outcome, len(regions))

	var wg sync.WaitGroup
	for i, region := range regions {
		if region.Status == StatusMaintenance {
			continue
		}
		wg.Add(1)
		go func(i int, region Region) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
			defer cancel()

			result, err := m.prober.Probe(probeCtx, ProbeTarget{
				ID:                region.ID,
				APIEndpoint:       region.APIEndpoint,
				DatastoreEndpoint: region.DatastoreEndpoint,
			})
			outcomes[i] = outcome{region: region, result: result, err: err}
		}(i, region)
	}
	wg.Wait()

	now := time.Now()
	round := make([]HealthCheck, 0, len(regions))

	for i, region := range regions {
		if region.Status == StatusMaintenance {
			continue
		}
		o := outcomes[i]
		check := buildHealthCheck(region.ID, now, o.result, o.err)
		stabilized := m.applyHysteresis(region, check)

		if err := m.registry.UpdateStatus(region.ID, stabilized, check.Checks.Latency, now); err != nil {
			m.logger.Warn("status update failed", zap.String("region", region.ID), zap.Error(err))
		}

		m.mu.Lock()
		ring, ok := m.histories[region.ID]
		if !ok {
			ring = newHistoryRing()
			m.histories[region.ID] = ring
		}
		ring.append(check)
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.SetRegionStatus(region.ID, string(stabilized))
			m.metrics.ObserveProbe(region.ID, check.Checks.Latency.Seconds())
		}

		if stabilized != region.Status {
			m.announceTransition(region, stabilized)
		}
		round = append(round, check)
	}

	if m.onRound != nil {
		m.onRound(ctx, round)
	}
	m.checkReplicationLag()

	return round
}

// buildHealthCheck aggregates one probe outcome into a record. A probe
// that could not execute at all is offline, not unhealthy.
func buildHealthCheck(regionID string, ts time.Time, result CheckResult, err error) HealthCheck {
	check := HealthCheck{
		RegionID:  regionID,
		Timestamp: ts,
		Checks:    result,
	}

	if err != nil {
		check.Status = StatusOffline
		check.Checks = CheckResult{}
		check.Errors = []string{err.Error()}
		return check
	}

	for _, failure := range []struct {
		ok   bool
		name string
	}{
		{result.Database, "database"},
		{result.API, "api"},
		{result.Storage, "storage"},
		{result.Cache, "cache"},
	} {
		if !failure.ok {
			check.Errors = append(check.Errors, failure.name+" check failed")
		}
	}

	switch result.FailedCount() {
	case 0:
		check.Status = StatusHealthy
	case 1:
		check.Status = StatusDegraded
	default:
		check.Status = StatusUnhealthy
	}
	return check
}

// applyHysteresis folds one round's raw status into the stabilized
// status: failureThreshold consecutive bad rounds to go down,
// recoveryThreshold consecutive healthy rounds to come back.
func (m *Monitor) applyHysteresis(region Region, check HealthCheck) RegionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.counters[region.ID]
	if !ok {
		h = &hysteresis{}
		m.counters[region.ID] = h
	}

	current := region.Status

	switch {
	case check.Status == StatusHealthy:
		h.good++
		h.bad = 0
		if current.Down() {
			if h.good >= m.cfg.RecoveryThreshold {
				return StatusHealthy
			}
			return current
		}
		return StatusHealthy

	case check.Status == StatusDegraded:
		// A degraded round breaks both streaks but never escalates on
		// its own; a down region stays down until it recovers cleanly.
		h.good = 0
		h.bad = 0
		if current.Down() {
			return current
		}
		return StatusDegraded

	default: // unhealthy or offline round
		h.bad++
		h.good = 0
		if h.bad >= m.cfg.FailureThreshold {
			return check.Status
		}
		if current == StatusHealthy && h.bad >= m.cfg.FailureThreshold-1 {
			return StatusDegraded
		}
		return current
	}
}

func (m *Monitor) announceTransition(region Region, to RegionStatus) {
	m.logger.Info("region status changed",
		zap.String("region", region.ID),
		zap.String("from", string(region.Status)),
		zap.String("to", string(to)))

	if m.alerter == nil {
		return
	}

	severity := alerting.SeverityInfo
	if to.Down() {
		severity = alerting.SeverityWarn
	}
	m.alerter.Publish(alerting.Alert{
		Severity: severity,
		Source:   region.ID,
		Message:  fmt.Sprintf("region %s is %s", region.ID, to),
		Details: map[string]string{
			"previous": string(region.Status),
		},
	})
}

func (m *Monitor) checkReplicationLag() {
	if m.tracker == nil {
		return
	}

	if m.metrics != nil {
		state := m.tracker.Snapshot()
		for id, pos := range state.Positions {
			m.metrics.SetReplicationLag(id, pos.Lag.Seconds())
		}
	}

	if m.alerter == nil {
		return
	}
	for _, id := range m.tracker.LaggingSecondaries(m.cfg.MaxReplicationLag) {
		m.alerter.Publish(alerting.Alert{
			Severity: alerting.SeverityWarn,
			Source:   id,
			Message:  fmt.Sprintf("replication lag on %s exceeds %s", id, m.cfg.MaxReplicationLag),
			Details: map[string]string{
				"lag": m.tracker.Lag(id).String(),
			},
		})
	}
}

// History returns the most recent limit checks for a region, newest
// last. Unknown or never-probed regions yield an empty slice.
func (m *Monitor) History(regionID string, limit int) []HealthCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ring, ok := m.histories[regionID]
	if !ok {
		return nil
	}
	return ring.recent(limit)
}
