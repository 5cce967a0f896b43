package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedLoadSource(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0.5, FixedLoadSource(0.5).Sample())
}

func TestGoroutineLoadSourceBelowCeiling(t *testing.T) {
	t.Parallel()
	source := GoroutineLoadSource{Ceiling: 1 << 20}
	require.Equal(t, 1.0, source.Sample())
}

func TestGoroutineLoadSourceAboveCeiling(t *testing.T) {
	t.Parallel()
	// A ceiling of one is always exceeded by the running test goroutines.
	source := GoroutineLoadSource{Ceiling: 1}
	sample := source.Sample()
	require.Greater(t, sample, 0.0)
	require.Less(t, sample, 1.0)
}

func TestLoadMonitorAppliesSamples(t *testing.T) {
	t.Parallel()
	m := NewEmptyManager(nil, nil)
	monitor := NewLoadMonitor(m, FixedLoadSource(0.5), 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = monitor.Start(ctx) }()

	require.Eventually(t, func() bool {
		return m.LoadMultiplier() == 0.5
	}, time.Second, 5*time.Millisecond)
}

func TestLoadMonitorRequiresConfiguration(t *testing.T) {
	t.Parallel()
	var monitor *LoadMonitor
	require.Error(t, monitor.Start(context.Background()))

	require.Error(t, NewLoadMonitor(nil, FixedLoadSource(1), time.Second, nil).Start(context.Background()))
}

func TestCleanupLoopReclaimsLimiters(t *testing.T) {
	t.Parallel()
	m := NewEmptyManager(nil, nil)
	m.ConfigureEndpoint("/api/stale", bucketPolicy(10, 10, false))
	m.CheckRequest("/api/stale", "", 1)
	m.RemoveEndpoint("/api/stale")

	loop := NewCleanupLoop(m, 5*time.Millisecond, NewInMemoryMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Start(ctx) }()

	require.Eventually(t, func() bool {
		return m.Snapshot().EndpointLimiters == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCleanupLoopRequiresManager(t *testing.T) {
	t.Parallel()
	require.Error(t, NewCleanupLoop(nil, time.Second, nil).Start(context.Background()))
}
