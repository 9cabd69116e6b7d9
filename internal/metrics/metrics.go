package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var statuses = []string{"healthy", "degraded", "unhealthy", "offline", "maintenance"}

// Metrics holds the Prometheus collectors for the DR controller.
type Metrics struct {
	RegionStatus    *prometheus.GaugeVec
	RegionLatency   *prometheus.GaugeVec
	ReplicationLag  *prometheus.GaugeVec
	FailoverCounter *prometheus.CounterVec
	ProbeDuration   *prometheus.HistogramVec
	registry        *prometheus.Registry
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RegionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "drctl_region_status",
				Help: "Region status (1 for the current status, 0 otherwise)",
			},
			[]string{"region", "status"},
		),
		RegionLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "drctl_region_latency_seconds",
				Help: "Last observed probe latency per region",
			},
			[]string{"region"},
		),
		ReplicationLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "drctl_replication_lag_seconds",
				Help: "Reported replication lag per secondary",
			},
			[]string{"region"},
		),
		FailoverCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drctl_failovers_total",
				Help: "Failover attempts by result",
			},
			[]string{"result"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drctl_probe_duration_seconds",
				Help:    "Health probe duration per region",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"region"},
		),
		registry: registry,
	}

	registry.MustRegister(m.RegionStatus)
	registry.MustRegister(m.RegionLatency)
	registry.MustRegister(m.ReplicationLag)
	registry.MustRegister(m.FailoverCounter)
	registry.MustRegister(m.ProbeDuration)

	return m
}

// SetRegionStatus marks the region's current status gauge.
func (m *Metrics) SetRegionStatus(region, status string) {
	for _, s := range statuses {
		value := 0.0
		if s == status {
			value = 1.0
		}
		m.RegionStatus.WithLabelValues(region, s).Set(value)
	}
}

// ObserveProbe records one probe's latency for a region.
func (m *Metrics) ObserveProbe(region string, seconds float64) {
	m.ProbeDuration.WithLabelValues(region).Observe(seconds)
	m.RegionLatency.WithLabelValues(region).Set(seconds)
}

// SetReplicationLag records a secondary's reported lag.
func (m *Metrics) SetReplicationLag(region string, seconds float64) {
	m.ReplicationLag.WithLabelValues(region).Set(seconds)
}

// IncFailover counts a failover attempt outcome.
func (m *Metrics) IncFailover(result string) {
	m.FailoverCounter.WithLabelValues(result).Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
