// Package dr implements the disaster recovery controller: health
// monitoring and automatic failover across a primary region and its
// secondaries.
//
// # Overview
//
// The package is built from four cooperating pieces:
//   - Registry: the source of truth for topology and per-region status
//   - Monitor: periodic concurrent probing with hysteresis stabilization
//   - Engine: failover target selection, transition and rollback
//   - ReplicationTracker: lag/sync bookkeeping behind the convergence wait
//
// # Data flow
//
//	Monitor tick ──► probe all regions concurrently
//	             ──► stabilize statuses (hysteresis) ──► Registry
//	             ──► Engine.Evaluate (same tick, post-update)
//	Engine       ──► suspend writes ──► convergence wait ──► promote
//	             ──► FailoverEvent + alert (rollback on any failure)
//
// # Quick start
//
//	ctrl, err := dr.NewController(dr.ControllerConfig{
//		Regions: []dr.RegionConfig{
//			{ID: "us-east", Priority: 1, APIEndpoint: "https://us-east.example.com"},
//			{ID: "us-west", Priority: 2, APIEndpoint: "https://us-west.example.com"},
//		},
//		Primary: "us-east",
//	}, dr.NewHTTPProber(5*time.Second), alerter, metrics, nil, logger)
//	if err != nil {
//		return err
//	}
//	if err := ctrl.StartHealthMonitoring(ctx); err != nil {
//		return err
//	}
//
// Exactly one region holds the writable flag outside an in-flight
// transition. Transitions are serialized by a single-flight guard and
// bounded by a transition timeout; a failed transition always restores
// the original primary's writable flag.
//
// The ChaosProber and DrillRunner exist to validate failover behavior
// by forcing a region's checks to fail; production configurations do
// not expose them.
package dr
