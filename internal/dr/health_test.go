package dr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, prober Prober) (*Monitor, *Registry) {
	t.Helper()

	registry, err := NewRegistry(threeRegions(), "us-east")
	require.NoError(t, err)

	tracker := NewReplicationTracker(registry.IDs(), "us-east")
	cfg := MonitorConfig{
		Interval:          10 * time.Millisecond,
		CheckTimeout:      100 * time.Millisecond,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
	return NewMonitor(cfg, registry, prober, tracker, nil, nil, nil), registry
}

func TestBuildHealthCheck_Aggregation(t *testing.T) {
	now := time.Now()

	t.Run("all checks pass is healthy", func(t *testing.T) {
		check := buildHealthCheck("us-east", now, allChecksPass(), nil)
		assert.Equal(t, StatusHealthy, check.Status)
		assert.Empty(t, check.Errors)
	})

	t.Run("one failed check is degraded", func(t *testing.T) {
		result := allChecksPass()
		result.Cache = false
		check := buildHealthCheck("us-east", now, result, nil)
		assert.Equal(t, StatusDegraded, check.Status)
		assert.Equal(t, []string{"cache check failed"}, check.Errors)
	})

	t.Run("two failed checks is unhealthy", func(t *testing.T) {
		result := allChecksPass()
		result.Database = false
		result.Storage = false
		check := buildHealthCheck("us-east", now, result, nil)
		assert.Equal(t, StatusUnhealthy, check.Status)
		assert.Len(t, check.Errors, 2)
	})

	t.Run("unreachable probe is offline not unhealthy", func(t *testing.T) {
		check := buildHealthCheck("us-east", now, CheckResult{}, fmt.Errorf("connection refused"))
		assert.Equal(t, StatusOffline, check.Status)
		assert.False(t, check.Checks.Database)
		assert.False(t, check.Checks.API)
		assert.False(t, check.Checks.Storage)
		assert.False(t, check.Checks.Cache)
		assert.Equal(t, []string{"connection refused"}, check.Errors)
	})
}

func TestMonitor_Hysteresis(t *testing.T) {
	t.Run("threshold minus one bad rounds does not mark unhealthy", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)
		prober.setUnreachable("us-west")

		for i := 0; i < 2; i++ {
			monitor.RunRound(context.Background())
		}

		region, _ := registry.Get("us-west")
		assert.NotEqual(t, StatusUnhealthy, region.Status)
		assert.NotEqual(t, StatusOffline, region.Status)
	})

	t.Run("threshold consecutive bad rounds marks the region down", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)
		prober.setUnreachable("us-west")

		for i := 0; i < 3; i++ {
			monitor.RunRound(context.Background())
		}

		region, _ := registry.Get("us-west")
		assert.Equal(t, StatusOffline, region.Status)
	})

	t.Run("a healthy round resets the failure streak", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)

		prober.setUnreachable("us-west")
		monitor.RunRound(context.Background())
		monitor.RunRound(context.Background())

		prober.setHealthy("us-west")
		monitor.RunRound(context.Background())

		prober.setUnreachable("us-west")
		monitor.RunRound(context.Background())
		monitor.RunRound(context.Background())

		region, _ := registry.Get("us-west")
		assert.NotEqual(t, StatusOffline, region.Status)
	})

	t.Run("recovery needs the full healthy streak", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)

		prober.setUnreachable("us-west")
		for i := 0; i < 3; i++ {
			monitor.RunRound(context.Background())
		}
		region, _ := registry.Get("us-west")
		require.Equal(t, StatusOffline, region.Status)

		prober.setHealthy("us-west")
		monitor.RunRound(context.Background())
		region, _ = registry.Get("us-west")
		assert.Equal(t, StatusOffline, region.Status, "one healthy round must not restore")

		monitor.RunRound(context.Background())
		region, _ = registry.Get("us-west")
		assert.Equal(t, StatusHealthy, region.Status, "second healthy round restores")
	})

	t.Run("single degraded round is recorded without escalation", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)

		result := allChecksPass()
		result.Cache = false
		prober.setResult("us-west", result)
		monitor.RunRound(context.Background())

		region, _ := registry.Get("us-west")
		assert.Equal(t, StatusDegraded, region.Status)

		prober.setHealthy("us-west")
		monitor.RunRound(context.Background())
		region, _ = registry.Get("us-west")
		assert.Equal(t, StatusHealthy, region.Status)
	})
}

func TestMonitor_History(t *testing.T) {
	t.Run("keeps at most the last hundred checks", func(t *testing.T) {
		prober := newFakeProber()
		monitor, _ := newTestMonitor(t, prober)

		for i := 0; i < 105; i++ {
			monitor.RunRound(context.Background())
		}

		history := monitor.History("us-east", 1000)
		assert.Len(t, history, 100)
	})

	t.Run("returns newest last", func(t *testing.T) {
		ring := newHistoryRing()
		for i := 0; i < 105; i++ {
			ring.append(HealthCheck{RegionID: fmt.Sprintf("round-%d", i)})
		}

		recent := ring.recent(1000)
		require.Len(t, recent, 100)
		assert.Equal(t, "round-5", recent[0].RegionID, "oldest five evicted")
		assert.Equal(t, "round-104", recent[99].RegionID)
	})

	t.Run("respects the limit", func(t *testing.T) {
		ring := newHistoryRing()
		for i := 0; i < 10; i++ {
			ring.append(HealthCheck{RegionID: fmt.Sprintf("round-%d", i)})
		}

		recent := ring.recent(3)
		require.Len(t, recent, 3)
		assert.Equal(t, "round-7", recent[0].RegionID)
		assert.Equal(t, "round-9", recent[2].RegionID)
	})

	t.Run("unknown region yields empty history", func(t *testing.T) {
		prober := newFakeProber()
		monitor, _ := newTestMonitor(t, prober)
		assert.Empty(t, monitor.History("mars", 10))
	})
}

func TestMonitor_ProbeIsolation(t *testing.T) {
	t.Run("one unreachable region does not affect the others", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)
		prober.setUnreachable("us-west")

		round := monitor.RunRound(context.Background())
		assert.Len(t, round, 3)

		east, _ := registry.Get("us-east")
		assert.Equal(t, StatusHealthy, east.Status)
	})

	t.Run("a slow probe times out instead of hanging the round", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)
		prober.setDelay("us-west", time.Second) // check timeout is 100ms

		start := time.Now()
		monitor.RunRound(context.Background())
		assert.Less(t, time.Since(start), 500*time.Millisecond)

		east, _ := registry.Get("us-east")
		assert.Equal(t, StatusHealthy, east.Status)

		history := monitor.History("us-west", 1)
		require.Len(t, history, 1)
		assert.Equal(t, StatusOffline, history[0].Status)
	})
}

func TestMonitor_MaintenanceSkip(t *testing.T) {
	prober := newFakeProber()
	monitor, registry := newTestMonitor(t, prober)
	require.NoError(t, registry.SetMaintenance("eu-central", true))

	round := monitor.RunRound(context.Background())
	assert.Len(t, round, 2, "maintenance region is not probed")

	region, _ := registry.Get("eu-central")
	assert.Equal(t, StatusMaintenance, region.Status)
	assert.Empty(t, monitor.History("eu-central", 10))
}

func TestMonitor_RoundHandler(t *testing.T) {
	t.Run("receives the round after statuses settle", func(t *testing.T) {
		prober := newFakeProber()
		monitor, registry := newTestMonitor(t, prober)
		prober.setUnreachable("us-east")

		var observed RegionStatus
		monitor.SetRoundHandler(func(_ context.Context, round []HealthCheck) {
			region, _ := registry.Get("us-east")
			observed = region.Status
		})

		for i := 0; i < 3; i++ {
			monitor.RunRound(context.Background())
		}
		assert.Equal(t, StatusOffline, observed, "handler must see the post-update status")
	})
}

func TestMonitor_StartStop(t *testing.T) {
	t.Run("loop runs rounds until stopped", func(t *testing.T) {
		prober := newFakeProber()
		monitor, _ := newTestMonitor(t, prober)

		require.NoError(t, monitor.Start(context.Background()))
		assert.True(t, monitor.Running())

		assert.Eventually(t, func() bool {
			return len(monitor.History("us-east", 10)) > 0
		}, time.Second, 10*time.Millisecond)

		monitor.Stop()
		monitor.Wait()
		assert.False(t, monitor.Running())
	})

	t.Run("double start is rejected", func(t *testing.T) {
		prober := newFakeProber()
		monitor, _ := newTestMonitor(t, prober)

		require.NoError(t, monitor.Start(context.Background()))
		assert.Error(t, monitor.Start(context.Background()))

		monitor.Stop()
		monitor.Wait()
	})

	t.Run("stop after stop is a no-op", func(t *testing.T) {
		prober := newFakeProber()
		monitor, _ := newTestMonitor(t, prober)

		require.NoError(t, monitor.Start(context.Background()))
		monitor.Stop()
		monitor.Stop()
		monitor.Wait()
	})
}
