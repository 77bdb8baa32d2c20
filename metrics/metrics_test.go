package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/kvstore"
	"github.com/storepilot/storepilot/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)

	c.CommandsProcessed.WithLabelValues("product", "success").Inc()
	c.CommandsProcessed.WithLabelValues("product", "success").Inc()
	c.RateLimitRejections.WithLabelValues("store").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.CommandsProcessed.WithLabelValues("product", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RateLimitRejections.WithLabelValues("store")))
}

func TestExecutionTracker_Track(t *testing.T) {
	tracker := metrics.NewExecutionTracker(kvstore.NewMemoryStore(), nil)
	ctx := context.Background()

	tracker.Track(ctx, "tenant-1", command.TypeProduct, 100*time.Millisecond, true)
	tracker.Track(ctx, "tenant-1", command.TypeProduct, 300*time.Millisecond, false)

	stats, err := tracker.Stats(ctx, "tenant-1", command.TypeProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.Errors)
	assert.InDelta(t, 0.5, stats.ErrorRate(), 0.001)
	assert.Equal(t, 200*time.Millisecond, stats.AvgDuration())
}

func TestExecutionTracker_PairsIsolated(t *testing.T) {
	tracker := metrics.NewExecutionTracker(kvstore.NewMemoryStore(), nil)
	ctx := context.Background()

	tracker.Track(ctx, "tenant-1", command.TypeProduct, time.Millisecond, true)

	stats, err := tracker.Stats(ctx, "tenant-1", command.TypeOrder)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCalls)

	stats, err = tracker.Stats(ctx, "tenant-2", command.TypeProduct)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCalls)
}

func TestExecutionStats_ZeroValues(t *testing.T) {
	var stats metrics.ExecutionStats
	assert.Zero(t, stats.ErrorRate())
	assert.Zero(t, stats.AvgDuration())
}
