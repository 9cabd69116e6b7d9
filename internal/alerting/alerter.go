package alerting

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Severities
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// Alert is one notification produced by the DR controller.
type Alert struct {
	ID        string            `json:"id"`
	Severity  string            `json:"severity"`
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Notifier receives published alerts. Delivery transport (email, Slack,
// pager) is the subscriber's concern.
type Notifier func(Alert)

const recentCapacity = 100

// Config tunes the alerter.
type Config struct {
	// NotifyRate caps how many non-critical notifications per second
	// reach subscribers. Critical alerts are never dropped.
	NotifyRate  rate.Limit
	NotifyBurst int
}

// DefaultConfig returns sensible defaults: one non-critical
// notification per second with a small burst.
func DefaultConfig() Config {
	return Config{NotifyRate: 1, NotifyBurst: 5}
}

// Alerter fans alerts out to subscribers and keeps a bounded recent
// history for the operations dashboard.
type Alerter struct {
	mu          sync.RWMutex
	recent      []Alert
	subscribers []Notifier
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// New creates an alerter. A nil logger falls back to zap.NewNop.
func New(cfg Config, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NotifyRate == 0 {
		cfg = DefaultConfig()
	}
	return &Alerter{
		recent:  make([]Alert, 0, recentCapacity),
		limiter: rate.NewLimiter(cfg.NotifyRate, cfg.NotifyBurst),
		logger:  logger,
	}
}

// Subscribe registers a notifier for all future alerts.
func (a *Alerter) Subscribe(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, n)
}

// Publish records the alert and notifies subscribers asynchronously.
// A flapping source cannot page at probe frequency: non-critical
// notifications are rate limited (the alert is still recorded).
func (a *Alerter) Publish(alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.Severity == "" {
		alert.Severity = SeverityInfo
	}

	a.mu.Lock()
	a.recent = append(a.recent, alert)
	if len(a.recent) > recentCapacity {
		a.recent = a.recent[len(a.recent)-recentCapacity:]
	}
	subscribers := make([]Notifier, len(a.subscribers))
	copy(subscribers, a.subscribers)
	a.mu.Unlock()

	a.logger.Info("alert published",
		zap.String("severity", alert.Severity),
		zap.String("source", alert.Source),
		zap.String("message", alert.Message))

	if alert.Severity != SeverityCritical && !a.limiter.Allow() {
		a.logger.Debug("alert notification rate limited",
			zap.String("id", alert.ID))
		return
	}

	for _, n := range subscribers {
		go n(alert)
	}
}

// Recent returns up to limit of the most recent alerts, newest last.
func (a *Alerter) Recent(limit int) []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 || limit > len(a.recent) {
		limit = len(a.recent)
	}
	result := make([]Alert, limit)
	copy(result, a.recent[len(a.recent)-limit:])
	return result
}
