package dr

import (
	"context"
	"fmt"
	"time"

	"github.com/FairForge/drctl/internal/alerting"
	"github.com/FairForge/drctl/internal/metrics"
	"go.uber.org/zap"
)

// ControllerConfig collects the recognized tuning options.
type ControllerConfig struct {
	Regions  []RegionConfig
	Primary  string
	Monitor  MonitorConfig
	Failover EngineConfig
}

// Controller is the disaster recovery controller: one explicit
// instance owned by the composition root, no ambient global.
type Controller struct {
	registry *Registry
	monitor  *Monitor
	engine   *Engine
	tracker  *ReplicationTracker
	chaos    *ChaosProber
	alerter  *alerting.Alerter
	logger   *zap.Logger
}

// StatusReport is the operations dashboard view of the controller.
type StatusReport struct {
	Primary          string           `json:"primary"`
	Regions          []Region         `json:"regions"`
	Replication      ReplicationState `json:"replication"`
	RecentFailovers  []FailoverEvent  `json:"recent_failovers"`
	ChaosTarget      string           `json:"chaos_target,omitempty"`
	ChaosEnabled     bool             `json:"chaos_enabled"`
	MonitoringActive bool             `json:"monitoring_active"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// statusEventLimit caps how many failover events a status report shows.
const statusEventLimit = 10

// NewController wires the registry, monitor, engine and tracker from
// configuration. The prober is the injected infrastructure
// collaborator; alerter, metrics and recorder may be nil.
func NewController(cfg ControllerConfig, prober Prober, alerter *alerting.Alerter,
	m *metrics.Metrics, recorder EventRecorder, logger *zap.Logger) (*Controller, error) {

	if prober == nil {
		return nil, fmt.Errorf("dr: prober required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry, err := NewRegistry(cfg.Regions, cfg.Primary)
	if err != nil {
		return nil, err
	}

	tracker := NewReplicationTracker(registry.IDs(), cfg.Primary)
	chaos := NewChaosProber(prober)
	engine := NewEngine(cfg.Failover, registry, tracker, alerter, m, recorder, logger)
	monitor := NewMonitor(cfg.Monitor, registry, chaos, tracker, alerter, m, logger)
	monitor.SetRoundHandler(engine.Evaluate)

	return &Controller{
		registry: registry,
		monitor:  monitor,
		engine:   engine,
		tracker:  tracker,
		chaos:    chaos,
		alerter:  alerter,
		logger:   logger,
	}, nil
}

// StartHealthMonitoring begins the periodic probe loop.
func (c *Controller) StartHealthMonitoring(ctx context.Context) error {
	return c.monitor.Start(ctx)
}

// StopHealthMonitoring stops scheduling rounds; an in-flight round
// completes naturally.
func (c *Controller) StopHealthMonitoring() {
	c.monitor.Stop()
}

// RunRound executes one monitoring round synchronously. Used by the
// drill runner and tests.
func (c *Controller) RunRound(ctx context.Context) []HealthCheck {
	return c.monitor.RunRound(ctx)
}

// TriggerManualFailover promotes the named region. Fails fast if the
// target is unknown or not healthy; exempt from the cooldown.
func (c *Controller) TriggerManualFailover(ctx context.Context, target, reason string) error {
	return c.engine.ManualFailover(ctx, target, reason)
}

// EnableChaosMode forces every health check for the named region to
// fail until disabled.
func (c *Controller) EnableChaosMode(target string) error {
	if _, ok := c.registry.Get(target); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, target)
	}
	c.chaos.Enable(target)
	c.logger.Warn("chaos mode enabled", zap.String("region", target))
	return nil
}

// DisableChaosMode clears any chaos target.
func (c *Controller) DisableChaosMode() {
	c.chaos.Disable()
	c.logger.Info("chaos mode disabled")
}

// SetMaintenance toggles a region's maintenance state. A region in
// maintenance is neither probed nor eligible as a failover target.
func (c *Controller) SetMaintenance(id string, enabled bool) error {
	region, ok := c.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	if enabled && region.Writable {
		return fmt.Errorf("dr: cannot place primary %q into maintenance; fail over first", id)
	}
	return c.registry.SetMaintenance(id, enabled)
}

// ReportLag feeds a secondary's replication position into the tracker.
// Called by the external replication pipeline.
func (c *Controller) ReportLag(regionID string, lag time.Duration, syncedAt time.Time) error {
	return c.tracker.ReportLag(regionID, lag, syncedAt)
}

// AddConflictsResolved bumps the tracker's conflicts counter.
func (c *Controller) AddConflictsResolved(n int64) {
	c.tracker.AddConflictsResolved(n)
}

// Status returns the full dashboard snapshot.
func (c *Controller) Status() StatusReport {
	primary := ""
	if region, ok := c.registry.Primary(); ok {
		primary = region.ID
	}

	chaosTarget := c.chaos.Target()
	return StatusReport{
		Primary:          primary,
		Regions:          c.registry.All(),
		Replication:      c.tracker.Snapshot(),
		RecentFailovers:  c.engine.Events(statusEventLimit),
		ChaosTarget:      chaosTarget,
		ChaosEnabled:     chaosTarget != "",
		MonitoringActive: c.monitor.Running(),
		GeneratedAt:      time.Now(),
	}
}

// HealthHistory returns the most recent limit checks for a region.
func (c *Controller) HealthHistory(regionID string, limit int) ([]HealthCheck, error) {
	if _, ok := c.registry.Get(regionID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, regionID)
	}
	return c.monitor.History(regionID, limit), nil
}

// Alerts returns the most recent alerts, newest last.
func (c *Controller) Alerts(limit int) []alerting.Alert {
	if c.alerter == nil {
		return nil
	}
	return c.alerter.Recent(limit)
}

// FailoverEvents returns the most recent limit events, newest last.
func (c *Controller) FailoverEvents(limit int) []FailoverEvent {
	return c.engine.Events(limit)
}

// Shutdown stops monitoring and waits for the in-flight round and any
// in-flight failover transition to complete.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.monitor.Stop()

	done := make(chan struct{})
	go func() {
		c.monitor.Wait()
		c.engine.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dr: shutdown timed out: %w", ctx.Err())
	}
}
