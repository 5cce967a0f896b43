// Package admission provides in-memory metrics.
package admission

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics records service measurements.
type Metrics interface {
	IncCheck(result string, algorithm string)
	ObserveLatency(op string, d time.Duration)
	IncRejection(endpoint string)
	IncPeerRejection(endpoint string)
}

// InMemoryMetrics stores counters and latency summaries. It backs tests and
// deployments without a scrape endpoint.
type InMemoryMetrics struct {
	counters  sync.Map
	latencies sync.Map
}

type latencySummary struct {
	count      atomic.Int64
	totalNanos atomic.Int64
	maxNanos   atomic.Int64
}

// NewInMemoryMetrics constructs an in-memory metrics recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

// IncCheck increments a check counter.
func (m *InMemoryMetrics) IncCheck(result string, algorithm string) {
	if m == nil {
		return
	}
	m.incCounter(fmt.Sprintf("check|%s|%s", result, algorithm))
}

// ObserveLatency tracks latency measurements.
func (m *InMemoryMetrics) ObserveLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	entry := m.getLatency("latency|" + op)
	if entry == nil {
		return
	}
	nanos := d.Nanoseconds()
	entry.count.Add(1)
	entry.totalNanos.Add(nanos)
	for {
		current := entry.maxNanos.Load()
		if nanos <= current {
			break
		}
		if entry.maxNanos.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// IncRejection increments a rejection counter for an endpoint.
func (m *InMemoryMetrics) IncRejection(endpoint string) {
	if m == nil {
		return
	}
	m.incCounter("rejection|" + endpoint)
}

// IncPeerRejection increments a per-peer rejection counter for an endpoint.
func (m *InMemoryMetrics) IncPeerRejection(endpoint string) {
	if m == nil {
		return
	}
	m.incCounter("peer_rejection|" + endpoint)
}

// RecordRateLimitRejection satisfies RejectionRecorder.
func (m *InMemoryMetrics) RecordRateLimitRejection(endpoint string) {
	m.IncRejection(endpoint)
}

// RecordPeerRateLimitRejection satisfies RejectionRecorder.
func (m *InMemoryMetrics) RecordPeerRateLimitRejection(endpoint, client string) {
	m.IncPeerRejection(endpoint)
}

// Counter returns the current value of a named counter.
func (m *InMemoryMetrics) Counter(key string) int64 {
	if m == nil {
		return 0
	}
	if existing, ok := m.counters.Load(key); ok {
		if counter, ok := existing.(*atomic.Int64); ok {
			return counter.Load()
		}
	}
	return 0
}

// Snapshot exports metrics values.
func (m *InMemoryMetrics) Snapshot() map[string]any {
	result := map[string]any{}
	if m == nil {
		return result
	}

	counters := map[string]int64{}
	m.counters.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Int64)
		if !ok || counter == nil {
			return true
		}
		counters[k] = counter.Load()
		return true
	})

	latencies := map[string]map[string]int64{}
	m.latencies.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}
		entry, ok := value.(*latencySummary)
		if !ok || entry == nil {
			return true
		}
		latencies[k] = map[string]int64{
			"count":      entry.count.Load(),
			"totalNanos": entry.totalNanos.Load(),
			"maxNanos":   entry.maxNanos.Load(),
		}
		return true
	})

	result["counters"] = counters
	result["latencies"] = latencies
	return result
}

func (m *InMemoryMetrics) incCounter(key string) {
	counter := m.getCounter(key)
	if counter == nil {
		return
	}
	counter.Add(1)
}

func (m *InMemoryMetrics) getCounter(key string) *atomic.Int64 {
	if key == "" {
		return nil
	}
	if existing, ok := m.counters.Load(key); ok {
		if counter, ok := existing.(*atomic.Int64); ok {
			return counter
		}
	}
	counter := &atomic.Int64{}
	actual, _ := m.counters.LoadOrStore(key, counter)
	if stored, ok := actual.(*atomic.Int64); ok {
		return stored
	}
	return counter
}

func (m *InMemoryMetrics) getLatency(key string) *latencySummary {
	if key == "" {
		return nil
	}
	if existing, ok := m.latencies.Load(key); ok {
		if entry, ok := existing.(*latencySummary); ok {
			return entry
		}
	}
	entry := &latencySummary{}
	actual, _ := m.latencies.LoadOrStore(key, entry)
	if stored, ok := actual.(*latencySummary); ok {
		return stored
	}
	return entry
}
