package dr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/drctl/internal/alerting"
	"github.com/FairForge/drctl/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sentinel errors for invalid failover commands. Returned synchronously
// before any state mutation.
var (
	ErrTransitionInFlight = errors.New("dr: failover transition already in flight")
	ErrUnknownRegion      = errors.New("dr: unknown region")
	ErrTargetNotHealthy   = errors.New("dr: target region not healthy")
	ErrTargetIsPrimary    = errors.New("dr: target region is already primary")
)

// NoTarget is the recorded target when no healthy candidate exists.
const NoTarget = "none"

// EventDetail is the tagged payload of a failover event. Consumers
// switch on Kind instead of duck-typing JSON.
type EventDetail interface {
	Kind() string
}

// SuccessDetail describes a completed promotion.
type SuccessDetail struct {
	TargetLatency time.Duration `json:"target_latency"`
	TargetLag     time.Duration `json:"target_lag"`
}

func (SuccessDetail) Kind() string { return "success" }

// NoCandidateDetail describes an attempt with no healthy target.
type NoCandidateDetail struct {
	CandidatesConsidered int `json:"candidates_considered"`
}

func (NoCandidateDetail) Kind() string { return "no_candidate" }

// TransitionErrorDetail describes a mid-flight failure and rollback.
type TransitionErrorDetail struct {
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

func (TransitionErrorDetail) Kind() string { return "transition_error" }

// FailoverEvent is the immutable record of one failover attempt.
type FailoverEvent struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	FromRegion string        `json:"from_region"`
	ToRegion   string        `json:"to_region"`
	Reason     string        `json:"reason"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	Detail     EventDetail   `json:"-"`
}

// MarshalJSON embeds the detail payload with its kind tag.
func (e FailoverEvent) MarshalJSON() ([]byte, error) {
	type alias FailoverEvent
	out := struct {
		alias
		Detail map[string]interface{} `json:"detail,omitempty"`
	}{alias: alias(e)}

	if e.Detail != nil {
		raw, err := json.Marshal(e.Detail)
		if err != nil {
			return nil, err
		}
		detail := make(map[string]interface{})
		if err := json.Unmarshal(raw, &detail); err != nil {
			return nil, err
		}
		detail["kind"] = e.Detail.Kind()
		out.Detail = detail
	}
	return json.Marshal(out)
}

// EventRecorder persists failover events. Recording is best-effort and
// must never block or fail a transition.
type EventRecorder interface {
	Record(ctx context.Context, event FailoverEvent) error
}

// EngineConfig tunes the failover engine.
type EngineConfig struct {
	Auto              bool
	Cooldown          time.Duration
	TransitionTimeout time.Duration
}

// DefaultEngineConfig returns the reference defaults: automatic
// failover on, five-minute cooldown, two-second transition budget
// (twice the sub-second failover objective).
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Auto:              true,
		Cooldown:          5 * time.Minute,
		TransitionTimeout: 2 * time.Second,
	}
}

// eventHistoryCap bounds the in-memory event log; the persistent store
// keeps the full record.
const eventHistoryCap = 1000

// Engine decides when to fail over and executes transitions safely.
// Transitions are mutually exclusive: a trigger arriving while one is
// in flight is dropped, never queued.
type Engine struct {
	cfg      EngineConfig
	registry *Registry
	tracker  *ReplicationTracker
	alerter  *alerting.Alerter
	metrics  *metrics.Metrics
	recorder EventRecorder
	logger   *zap.Logger

	mu            sync.Mutex
	transitioning bool
	lastAutoDone  time.Time
	events        []FailoverEvent

	wg sync.WaitGroup
}

// NewEngine wires a failover engine. Alerter, metrics and recorder may
// be nil.
func NewEngine(cfg EngineConfig, registry *Registry, tracker *ReplicationTracker,
	alerter *alerting.Alerter, m *metrics.Metrics, recorder EventRecorder, logger *zap.Logger) *Engine {

	def := DefaultEngineConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.TransitionTimeout <= 0 {
		cfg.TransitionTimeout = def.TransitionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:      cfg,
		registry: registry,
		tracker:  tracker,
		alerter:  alerter,
		metrics:  m,
		recorder: recorder,
		logger:   logger,
		events:   make([]FailoverEvent, 0),
	}
}

// Evaluate is the monitor's post-round hook. It inspects the primary's
// stabilized status and, when it has crossed the unhealthy threshold,
// kicks off an automatic failover without blocking further probing.
func (e *Engine) Evaluate(ctx context.Context, round []HealthCheck) {
	if !e.cfg.Auto {
		return
	}

	primary, ok := e.registry.Primary()
	if !ok {
		return
	}
	if !primary.Status.Down() {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.AutoFailover(context.WithoutCancel(ctx),
			fmt.Sprintf("primary %s is %s", primary.ID, primary.Status))
	}()
}

// AutoFailover selects the best healthy secondary and transitions to
// it. Suppressed inside the cooldown window or while another
// transition is in flight.
func (e *Engine) AutoFailover(ctx context.Context, reason string) {
	if !e.tryBegin() {
		e.logger.Info("automatic failover dropped: transition in flight")
		return
	}
	defer e.end()

	e.mu.Lock()
	sinceLast := time.Since(e.lastAutoDone)
	suppressed := !e.lastAutoDone.IsZero() && sinceLast < e.cfg.Cooldown
	e.mu.Unlock()

	if suppressed {
		e.logger.Info("automatic failover suppressed by cooldown",
			zap.Duration("since_last", sinceLast),
			zap.Duration("cooldown", e.cfg.Cooldown))
		return
	}

	primary, ok := e.registry.Primary()
	if !ok {
		e.logger.Error("automatic failover aborted: no writable primary")
		return
	}

	target, considered := e.selectTarget(primary.ID)
	if target == nil {
		e.recordNoCandidate(ctx, primary.ID, reason, considered)
		e.completeAuto()
		return
	}

	e.transition(ctx, primary, *target, reason)
	e.completeAuto()
}

// ManualFailover promotes an operator-named target. Exempt from the
// cooldown; fails fast before any mutation if the command is invalid.
func (e *Engine) ManualFailover(ctx context.Context, targetID, reason string) error {
	target, ok := e.registry.Get(targetID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, targetID)
	}
	if target.Writable {
		return fmt.Errorf("%w: %q", ErrTargetIsPrimary, targetID)
	}
	if target.Status != StatusHealthy {
		return fmt.Errorf("%w: %q is %s", ErrTargetNotHealthy, targetID, target.Status)
	}

	if !e.tryBegin() {
		return ErrTransitionInFlight
	}
	defer e.end()

	primary, ok := e.registry.Primary()
	if !ok {
		return fmt.Errorf("dr: no writable primary to fail over from")
	}

	if reason == "" {
		reason = "manual failover"
	}
	event := e.transition(ctx, primary, target, reason)
	if !event.Success {
		if detail, ok := event.Detail.(TransitionErrorDetail); ok {
			return fmt.Errorf("dr: failover to %q failed at %s: %s", targetID, detail.Stage, detail.Err)
		}
		return fmt.Errorf("dr: failover to %q failed", targetID)
	}
	return nil
}

// selectTarget ranks healthy non-primary regions by priority, breaking
// ties on latency. Maintenance regions are never candidates.
func (e *Engine) selectTarget(primaryID string) (*Region, int) {
	var candidates []Region
	for _, region := range e.registry.All() {
		if region.ID == primaryID {
			continue
		}
		if region.Status != StatusHealthy {
			continue
		}
		candidates = append(candidates, region)
	}

	if len(candidates) == 0 {
		return nil, 0
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Latency < candidates[j].Latency
	})

	best := candidates[0]
	return &best, len(candidates)
}

// transition executes the failover: suspend writes on the old primary,
// wait (bounded) for replication convergence, promote the target. Any
// failure rolls back so the original primary is writable again; a
// failed failover never leaves zero writable regions.
func (e *Engine) transition(ctx context.Context, from, to Region, reason string) FailoverEvent {
	start := time.Now()

	e.logger.Info("failover transition starting",
		zap.String("from", from.ID),
		zap.String("to", to.ID),
		zap.String("reason", reason))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TransitionTimeout)
	defer cancel()

	fail := func(stage string, cause error) FailoverEvent {
		// Point of no return was write suspension; always hand writes
		// back to the original primary.
		if err := e.registry.SetWritable(from.ID, true); err != nil {
			e.logger.Error("rollback failed", zap.String("region", from.ID), zap.Error(err))
		}
		if err := e.registry.SetWritable(to.ID, false); err != nil {
			e.logger.Error("rollback failed", zap.String("region", to.ID), zap.Error(err))
		}

		event := e.newEvent(from.ID, to.ID, reason, time.Since(start), false,
			TransitionErrorDetail{Stage: stage, Err: cause.Error()})
		e.finishEvent(event, "failure")
		e.alert(alerting.SeverityCritical,
			fmt.Sprintf("failover from %s to %s failed during %s, rolled back: %v", from.ID, to.ID, stage, cause),
			map[string]string{"stage": stage})
		return event
	}

	// Step 1: stop accepting writes on the old primary.
	if err := e.registry.SetWritable(from.ID, false); err != nil {
		return fail("suspend-writes", err)
	}

	// Step 2: give the target at least its recorded lag to catch up,
	// capped by the transition budget.
	lag := e.tracker.Lag(to.ID)
	if err := e.waitForConvergence(ctx, lag); err != nil {
		return fail("convergence-wait", err)
	}

	// Step 3: promote.
	if err := e.registry.SetWritable(to.ID, true); err != nil {
		return fail("promote", err)
	}
	e.tracker.Promote(e.registry.IDs(), to.ID)

	event := e.newEvent(from.ID, to.ID, reason, time.Since(start), true,
		SuccessDetail{TargetLatency: to.Latency, TargetLag: lag})
	e.finishEvent(event, "success")
	e.alert(alerting.SeverityInfo,
		fmt.Sprintf("failover complete: primary is now %s (was %s)", to.ID, from.ID),
		map[string]string{"reason": reason})

	e.logger.Info("failover transition complete",
		zap.String("primary", to.ID),
		zap.Duration("duration", event.Duration))
	return event
}

// waitForConvergence blocks for the recorded lag or until the
// transition budget expires, whichever comes first. A budget expiry is
// a transition failure, not an unbounded stall.
func (e *Engine) waitForConvergence(ctx context.Context, lag time.Duration) error {
	if lag <= 0 {
		return nil
	}

	timer := time.NewTimer(lag)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("replication convergence not reached in time: %w", ctx.Err())
	}
}

func (e *Engine) recordNoCandidate(ctx context.Context, primaryID, reason string, considered int) {
	event := e.newEvent(primaryID, NoTarget, reason, 0, false,
		NoCandidateDetail{CandidatesConsidered: considered})
	e.finishEvent(event, "no_candidate")
	e.alert(alerting.SeverityCritical,
		fmt.Sprintf("failover required but no healthy candidate exists; staying on %s", primaryID),
		map[string]string{"reason": reason})
}

func (e *Engine) newEvent(from, to, reason string, duration time.Duration, success bool, detail EventDetail) FailoverEvent {
	return FailoverEvent{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		FromRegion: from,
		ToRegion:   to,
		Reason:     reason,
		Duration:   duration,
		Success:    success,
		Detail:     detail,
	}
}

// finishEvent appends to the in-memory log, bumps metrics and persists
// best-effort.
func (e *Engine) finishEvent(event FailoverEvent, result string) {
	e.mu.Lock()
	e.events = append(e.events, event)
	if len(e.events) > eventHistoryCap {
		e.events = e.events[len(e.events)-eventHistoryCap:]
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.IncFailover(result)
	}

	if e.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.recorder.Record(ctx, event); err != nil {
			e.logger.Warn("failover event not persisted",
				zap.String("event", event.ID), zap.Error(err))
		}
	}
}

func (e *Engine) alert(severity, message string, details map[string]string) {
	if e.alerter == nil {
		return
	}
	e.alerter.Publish(alerting.Alert{
		Severity: severity,
		Source:   "failover-engine",
		Message:  message,
		Details:  details,
	})
}

// Events returns the most recent limit events, newest last.
func (e *Engine) Events(limit int) []FailoverEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.events) {
		limit = len(e.events)
	}
	result := make([]FailoverEvent, limit)
	copy(result, e.events[len(e.events)-limit:])
	return result
}

// Wait blocks until in-flight asynchronous transitions finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) tryBegin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transitioning {
		return false
	}
	e.transitioning = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.transitioning = false
	e.mu.Unlock()
}

// completeAuto stamps the cooldown window from the completion of the
// attempt, successful or not.
func (e *Engine) completeAuto() {
	e.mu.Lock()
	e.lastAutoDone = time.Now()
	e.mu.Unlock()
}
