// Package admission provides Prometheus-backed metrics.
package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements Metrics and RejectionRecorder on a Prometheus
// registry, for deployments scraped through the ops /metrics endpoint.
type PrometheusMetrics struct {
	checks         *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	rejections     *prometheus.CounterVec
	peerRejections *prometheus.CounterVec
}

// NewPrometheusMetrics registers admission collectors on the given registry.
// A nil registry uses the default one.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_checks_total",
			Help: "Admission decisions by result and algorithm.",
		}, []string{"result", "algorithm"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admission_operation_duration_seconds",
			Help:    "Latency of admission operations.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_rate_limit_rejections_total",
			Help: "Requests rejected by endpoint-level rate limits.",
		}, []string{"endpoint"}),
		peerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_peer_rate_limit_rejections_total",
			Help: "Requests rejected by per-peer rate limits.",
		}, []string{"endpoint"}),
	}
}

// IncCheck increments the decision counter.
func (p *PrometheusMetrics) IncCheck(result string, algorithm string) {
	if p == nil {
		return
	}
	p.checks.WithLabelValues(result, algorithm).Inc()
}

// ObserveLatency records an operation duration.
func (p *PrometheusMetrics) ObserveLatency(op string, d time.Duration) {
	if p == nil {
		return
	}
	p.latency.WithLabelValues(op).Observe(d.Seconds())
}

// IncRejection increments the endpoint rejection counter.
func (p *PrometheusMetrics) IncRejection(endpoint string) {
	if p == nil {
		return
	}
	p.rejections.WithLabelValues(endpoint).Inc()
}

// IncPeerRejection increments the per-peer rejection counter.
func (p *PrometheusMetrics) IncPeerRejection(endpoint string) {
	if p == nil {
		return
	}
	p.peerRejections.WithLabelValues(endpoint).Inc()
}

// RecordRateLimitRejection satisfies RejectionRecorder.
func (p *PrometheusMetrics) RecordRateLimitRejection(endpoint string) {
	p.IncRejection(endpoint)
}

// RecordPeerRateLimitRejection satisfies RejectionRecorder.
func (p *PrometheusMetrics) RecordPeerRateLimitRejection(endpoint, client string) {
	// Client identity is deliberately not a label: peer cardinality is
	// unbounded.
	p.IncPeerRejection(endpoint)
}
