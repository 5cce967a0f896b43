package admission

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMetricsCounters(t *testing.T) {
	t.Parallel()
	metrics := NewInMemoryMetrics()

	metrics.IncCheck("allowed", "token_bucket")
	metrics.IncCheck("allowed", "token_bucket")
	metrics.IncCheck("denied", "sliding_window")
	metrics.IncRejection("/api/data")
	metrics.IncPeerRejection("/api/upload")

	require.Equal(t, int64(2), metrics.Counter("check|allowed|token_bucket"))
	require.Equal(t, int64(1), metrics.Counter("check|denied|sliding_window"))
	require.Equal(t, int64(1), metrics.Counter("rejection|/api/data"))
	require.Equal(t, int64(1), metrics.Counter("peer_rejection|/api/upload"))
	require.Equal(t, int64(0), metrics.Counter("missing"))
}

func TestInMemoryMetricsLatencySnapshot(t *testing.T) {
	t.Parallel()
	metrics := NewInMemoryMetrics()
	metrics.ObserveLatency("check", 2*time.Millisecond)
	metrics.ObserveLatency("check", 5*time.Millisecond)

	snapshot := metrics.Snapshot()
	latencies, ok := snapshot["latencies"].(map[string]map[string]int64)
	require.True(t, ok)
	entry, ok := latencies["latency|check"]
	require.True(t, ok)
	require.Equal(t, int64(2), entry["count"])
	require.Equal(t, (5 * time.Millisecond).Nanoseconds(), entry["maxNanos"])
}

func TestInMemoryMetricsNilSafe(t *testing.T) {
	t.Parallel()
	var metrics *InMemoryMetrics
	metrics.IncCheck("allowed", "token_bucket")
	metrics.ObserveLatency("check", time.Millisecond)
	metrics.IncRejection("/x")
	require.Equal(t, int64(0), metrics.Counter("any"))
}

func TestInMemoryMetricsAsRejectionRecorder(t *testing.T) {
	t.Parallel()
	metrics := NewInMemoryMetrics()
	m := NewEmptyManager(metrics, nil)
	m.ConfigureEndpoint("/api/data", bucketPolicy(1, 1, false))

	m.CheckRequest("/api/data", "", 1)
	m.CheckRequest("/api/data", "", 1)

	require.Equal(t, int64(1), metrics.Counter("rejection|/api/data"))
}

func TestPrometheusMetricsCollectors(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.IncCheck("allowed", "token_bucket")
	metrics.IncCheck("allowed", "token_bucket")
	metrics.RecordRateLimitRejection("/api/data")
	metrics.RecordPeerRateLimitRejection("/api/upload", "alice")
	metrics.ObserveLatency("check", time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.checks.WithLabelValues("allowed", "token_bucket")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues("/api/data")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.peerRejections.WithLabelValues("/api/upload")))
}

func TestPrometheusMetricsNilSafe(t *testing.T) {
	t.Parallel()
	var metrics *PrometheusMetrics
	metrics.IncCheck("allowed", "token_bucket")
	metrics.ObserveLatency("check", time.Millisecond)
	metrics.IncRejection("/x")
	metrics.IncPeerRejection("/x")
}
