package dr

import (
	"fmt"
	"sync"
	"time"
)

// RegionStatus represents the stabilized health status of a region.
type RegionStatus string

const (
	StatusHealthy     RegionStatus = "healthy"
	StatusDegraded    RegionStatus = "degraded"
	StatusUnhealthy   RegionStatus = "unhealthy"
	StatusOffline     RegionStatus = "offline"
	StatusMaintenance RegionStatus = "maintenance"
)

// Down reports whether the status makes a region ineligible to serve
// as primary. Offline is treated the same as unhealthy here.
func (s RegionStatus) Down() bool {
	return s == StatusUnhealthy || s == StatusOffline
}

// RegionConfig describes one region in the static topology.
type RegionConfig struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	APIEndpoint       string `yaml:"api_endpoint" json:"api_endpoint"`
	DatastoreEndpoint string `yaml:"datastore_endpoint" json:"datastore_endpoint"`
	Priority          int    `yaml:"priority" json:"priority"`
}

// Region combines static topology with mutable runtime status.
type Region struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	APIEndpoint       string        `json:"api_endpoint"`
	DatastoreEndpoint string        `json:"datastore_endpoint"`
	Priority          int           `json:"priority"`
	Status            RegionStatus  `json:"status"`
	Latency           time.Duration `json:"latency"`
	LastCheck         time.Time     `json:"last_check"`
	Writable          bool          `json:"writable"`
}

// Registry is the source of truth for topology and per-region status.
// Iteration order is configuration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	regions map[string]*Region
}

// NewRegistry builds a registry from static configuration. Every region
// starts healthy; only the initial primary is writable.
func NewRegistry(configs []RegionConfig, primary string) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("dr: at least one region required")
	}

	r := &Registry{
		order:   make([]string, 0, len(configs)),
		regions: make(map[string]*Region, len(configs)),
	}

	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("dr: region id required")
		}
		if _, exists := r.regions[cfg.ID]; exists {
			return nil, fmt.Errorf("dr: duplicate region id %q", cfg.ID)
		}
		r.order = append(r.order, cfg.ID)
		r.regions[cfg.ID] = &Region{
			ID:                cfg.ID,
			Name:              cfg.Name,
			APIEndpoint:       cfg.APIEndpoint,
			DatastoreEndpoint: cfg.DatastoreEndpoint,
			Priority:          cfg.Priority,
			Status:            StatusHealthy,
			Writable:          cfg.ID == primary,
		}
	}

	if _, ok := r.regions[primary]; !ok {
		return nil, fmt.Errorf("dr: initial primary %q not in topology", primary)
	}

	return r, nil
}

// Get returns a copy of the region, or false if unknown.
func (r *Registry) Get(id string) (Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	region, ok := r.regions[id]
	if !ok {
		return Region{}, false
	}
	return *region, true
}

// All returns copies of every region in configuration order.
func (r *Registry) All() []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Region, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.regions[id])
	}
	return result
}

// Primary returns the currently writable region, if any.
func (r *Registry) Primary() (Region, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if r.regions[id].Writable {
			return *r.regions[id], true
		}
	}
	return Region{}, false
}

// SetWritable flips a region's writable flag. Callers are responsible
// for maintaining the single-writer invariant.
func (r *Registry) SetWritable(id string, writable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	region, ok := r.regions[id]
	if !ok {
		return fmt.Errorf("dr: unknown region %q", id)
	}
	region.Writable = writable
	return nil
}

// UpdateStatus records a region's stabilized status and latest probe
// observation. Pure mutation, no side effects.
func (r *Registry) UpdateStatus(id string, status RegionStatus, latency time.Duration, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	region, ok := r.regions[id]
	if !ok {
		return fmt.Errorf("dr: unknown region %q", id)
	}
	region.Status = status
	region.Latency = latency
	region.LastCheck = checkedAt
	return nil
}

// SetMaintenance places a region into, or lifts it out of, maintenance.
// Only operators call this; the health monitor never does. Leaving
// maintenance re-enters at healthy and lets the monitor take over.
func (r *Registry) SetMaintenance(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	region, ok := r.regions[id]
	if !ok {
		return fmt.Errorf("dr: unknown region %q", id)
	}
	if enabled {
		region.Status = StatusMaintenance
	} else if region.Status == StatusMaintenance {
		region.Status = StatusHealthy
	}
	return nil
}

// IDs returns region ids in configuration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}
