package dr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_New(t *testing.T) {
	t.Run("builds regions from configuration", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)

		region, ok := registry.Get("us-east")
		require.True(t, ok)
		assert.Equal(t, StatusHealthy, region.Status)
		assert.True(t, region.Writable)

		region, ok = registry.Get("us-west")
		require.True(t, ok)
		assert.False(t, region.Writable)
	})

	t.Run("rejects duplicate region ids", func(t *testing.T) {
		configs := []RegionConfig{
			{ID: "us-east", Priority: 1},
			{ID: "us-east", Priority: 2},
		}
		_, err := NewRegistry(configs, "us-east")
		assert.ErrorContains(t, err, "duplicate region id")
	})

	t.Run("rejects unknown initial primary", func(t *testing.T) {
		_, err := NewRegistry(threeRegions(), "mars")
		assert.ErrorContains(t, err, "not in topology")
	})

	t.Run("rejects empty topology", func(t *testing.T) {
		_, err := NewRegistry(nil, "us-east")
		assert.Error(t, err)
	})
}

func TestRegistry_All(t *testing.T) {
	t.Run("iterates in configuration order", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)

		ids := make([]string, 0, 3)
		for _, region := range registry.All() {
			ids = append(ids, region.ID)
		}
		assert.Equal(t, []string{"us-east", "us-west", "eu-central"}, ids)
	})

	t.Run("returns copies not shared pointers", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)

		regions := registry.All()
		regions[0].Status = StatusOffline

		region, _ := registry.Get("us-east")
		assert.Equal(t, StatusHealthy, region.Status)
	})
}

func TestRegistry_Primary(t *testing.T) {
	registry, err := NewRegistry(threeRegions(), "us-west")
	require.NoError(t, err)

	primary, ok := registry.Primary()
	require.True(t, ok)
	assert.Equal(t, "us-west", primary.ID)
}

func TestRegistry_SetWritable(t *testing.T) {
	t.Run("flips the flag", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)

		require.NoError(t, registry.SetWritable("us-east", false))
		require.NoError(t, registry.SetWritable("us-west", true))

		primary, ok := registry.Primary()
		require.True(t, ok)
		assert.Equal(t, "us-west", primary.ID)
	})

	t.Run("rejects unknown region", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)
		assert.Error(t, registry.SetWritable("mars", true))
	})
}

func TestRegistry_UpdateStatus(t *testing.T) {
	registry, err := NewRegistry(threeRegions(), "us-east")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, registry.UpdateStatus("us-west", StatusDegraded, 42*time.Millisecond, now))

	region, ok := registry.Get("us-west")
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, region.Status)
	assert.Equal(t, 42*time.Millisecond, region.Latency)
	assert.Equal(t, now, region.LastCheck)
}

func TestRegistry_Maintenance(t *testing.T) {
	t.Run("set and clear", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)

		require.NoError(t, registry.SetMaintenance("us-west", true))
		region, _ := registry.Get("us-west")
		assert.Equal(t, StatusMaintenance, region.Status)

		require.NoError(t, registry.SetMaintenance("us-west", false))
		region, _ = registry.Get("us-west")
		assert.Equal(t, StatusHealthy, region.Status)
	})

	t.Run("clearing a non-maintenance region keeps its status", func(t *testing.T) {
		registry, err := NewRegistry(threeRegions(), "us-east")
		require.NoError(t, err)

		require.NoError(t, registry.UpdateStatus("us-west", StatusUnhealthy, 0, time.Now()))
		require.NoError(t, registry.SetMaintenance("us-west", false))

		region, _ := registry.Get("us-west")
		assert.Equal(t, StatusUnhealthy, region.Status)
	})
}

func TestRegionStatus_Down(t *testing.T) {
	assert.True(t, StatusUnhealthy.Down())
	assert.True(t, StatusOffline.Down())
	assert.False(t, StatusHealthy.Down())
	assert.False(t, StatusDegraded.Down())
	assert.False(t, StatusMaintenance.Down())
}
