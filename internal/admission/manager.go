// Package admission provides the per-endpoint and per-peer admission manager.
package admission

import (
	"math"
	"sync"
	"sync/atomic"
)

const (
	minLoadMultiplier = 0.1
	maxLoadMultiplier = 10.0
)

// RejectionRecorder is the external metrics collaborator notified on every
// denial. Calls are fire-and-forget: implementations must not block, and a
// panicking recorder never fails the admission decision.
type RejectionRecorder interface {
	RecordRateLimitRejection(endpoint string)
	RecordPeerRateLimitRejection(endpoint, client string)
}

// Manager owns one RateLimiter per endpoint plus one per (endpoint, client)
// pair for per-peer policies, and applies a process-wide load multiplier to
// every request cost. It is the only component the proxy pipeline calls on
// the request path, and every method completes without blocking I/O.
//
// All methods are safe for concurrent use. Limiters are created lazily,
// exactly once per key; independent keys never contend with each other.
type Manager struct {
	mu      sync.RWMutex
	configs map[string]EndpointPolicy

	endpointLimiters sync.Map // endpoint → *limiterEntry
	peerLimiters     sync.Map // endpoint → *peerLimiterSet

	endpointCount atomic.Int64
	peerCount     atomic.Int64

	loadMultiplier atomic.Uint64 // math.Float64bits

	allowed atomic.Uint64
	denied  atomic.Uint64

	recorder RejectionRecorder
	logger   Logger
}

// limiterEntry pairs a limiter with the mutex that serializes its accounting.
// The entry itself is created race-free via LoadOrStore, so two first
// requests for the same key always land on one limiter.
type limiterEntry struct {
	mu  sync.Mutex
	lim *RateLimiter
}

func (e *limiterEntry) check(cost uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lim.CheckRequest(cost)
}

func (e *limiterEntry) update(cfg AlgorithmConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lim.UpdateConfig(cfg)
}

// peerLimiterSet holds the per-client limiters of one endpoint.
type peerLimiterSet struct {
	limiters sync.Map // client → *limiterEntry
	count    atomic.Int64
}

// NewManager constructs a manager seeded with the bootstrap policies for the
// gateway's own API endpoints. Production deployments replace these through
// configuration.
func NewManager(recorder RejectionRecorder, logger Logger) *Manager {
	m := &Manager{
		configs:  make(map[string]EndpointPolicy),
		recorder: recorder,
		logger:   logger,
	}
	m.loadMultiplier.Store(math.Float64bits(1.0))

	m.configs["/api/peers"] = EndpointPolicy{
		Algorithm: AlgorithmConfig{
			Kind: AlgorithmTokenBucket,
			TokenBucket: TokenBucketConfig{
				Capacity:      50,
				RefillRate:    5.0,
				InitialTokens: 50,
			},
		},
		PerPeer:           false,
		TrustedMultiplier: 2.0,
	}
	m.configs["/api/register"] = EndpointPolicy{
		Algorithm: AlgorithmConfig{
			Kind: AlgorithmSlidingWindow,
			SlidingWindow: SlidingWindowConfig{
				WindowSize:  300,
				MaxRequests: 10,
				SubWindows:  10,
			},
		},
		PerPeer:           true,
		TrustedMultiplier: 1.5,
	}
	return m
}

// NewEmptyManager constructs a manager with no seeded policies.
func NewEmptyManager(recorder RejectionRecorder, logger Logger) *Manager {
	m := &Manager{
		configs:  make(map[string]EndpointPolicy),
		recorder: recorder,
		logger:   logger,
	}
	m.loadMultiplier.Store(math.Float64bits(1.0))
	return m
}

// CheckRequest decides whether a request against endpoint should be admitted.
// client is the caller identity for per-peer policies; an empty string means
// no identity is available. cost is the request weight for token bucket
// policies and is ignored under sliding window policies.
//
// Endpoints without a policy are always allowed: availability for
// unconfigured routes takes priority over strict enforcement.
func (m *Manager) CheckRequest(endpoint, client string, cost uint32) bool {
	m.mu.RLock()
	policy, ok := m.configs[endpoint]
	m.mu.RUnlock()
	if !ok {
		logDebug(m.logger, "no admission policy for endpoint, allowing", map[string]any{"endpoint": endpoint})
		m.allowed.Add(1)
		return true
	}

	// The multiplier is read with one atomic load before any limiter is
	// touched, never under a map or entry lock.
	adjusted := adjustCost(cost, m.LoadMultiplier())

	var allowed bool
	if policy.PerPeer && client != "" {
		allowed = m.checkPeer(endpoint, client, policy, adjusted)
	} else {
		// Per-peer policies degrade to shared accounting when the caller
		// identity is missing.
		allowed = m.checkEndpoint(endpoint, policy, adjusted)
	}

	if allowed {
		m.allowed.Add(1)
	} else {
		m.denied.Add(1)
	}
	return allowed
}

func (m *Manager) checkEndpoint(endpoint string, policy EndpointPolicy, cost uint32) bool {
	entry := m.endpointEntry(endpoint, policy)
	allowed := entry.check(cost)
	if !allowed {
		m.notifyRejection(endpoint, "")
		logWarn(m.logger, "rate limit exceeded for endpoint", map[string]any{"endpoint": endpoint})
	}
	return allowed
}

func (m *Manager) checkPeer(endpoint, client string, policy EndpointPolicy, cost uint32) bool {
	set := m.peerSet(endpoint)
	entry := set.entry(client, policy)
	allowed := entry.check(cost)
	if !allowed {
		m.notifyRejection(endpoint, client)
		logWarn(m.logger, "rate limit exceeded for peer", map[string]any{
			"endpoint": endpoint,
			"client":   client,
		})
	}
	return allowed
}

func (m *Manager) endpointEntry(endpoint string, policy EndpointPolicy) *limiterEntry {
	if existing, ok := m.endpointLimiters.Load(endpoint); ok {
		return existing.(*limiterEntry)
	}
	entry := &limiterEntry{lim: NewRateLimiter(policy.Algorithm)}
	actual, loaded := m.endpointLimiters.LoadOrStore(endpoint, entry)
	if !loaded {
		m.endpointCount.Add(1)
	}
	return actual.(*limiterEntry)
}

func (m *Manager) peerSet(endpoint string) *peerLimiterSet {
	if existing, ok := m.peerLimiters.Load(endpoint); ok {
		return existing.(*peerLimiterSet)
	}
	actual, _ := m.peerLimiters.LoadOrStore(endpoint, &peerLimiterSet{})
	return actual.(*peerLimiterSet)
}

func (s *peerLimiterSet) entry(client string, policy EndpointPolicy) *limiterEntry {
	if existing, ok := s.limiters.Load(client); ok {
		return existing.(*limiterEntry)
	}
	entry := &limiterEntry{lim: NewRateLimiter(policy.Algorithm)}
	actual, loaded := s.limiters.LoadOrStore(client, entry)
	if !loaded {
		s.count.Add(1)
	}
	return actual.(*limiterEntry)
}

// notifyRejection informs the external rejection collaborator. The call is
// panic-isolated: a broken collaborator must not take down the admission
// path.
func (m *Manager) notifyRejection(endpoint, client string) {
	if m.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logWarn(m.logger, "rejection recorder panicked", map[string]any{"panic": r})
		}
	}()
	if client != "" {
		m.recorder.RecordPeerRateLimitRejection(endpoint, client)
		return
	}
	m.recorder.RecordRateLimitRejection(endpoint)
}

// UpdateLoadMultiplier stores a new process-wide load multiplier, clamped to
// [0.1, 10.0]. Values below 1.0 shrink every effective budget immediately;
// values above relax them.
func (m *Manager) UpdateLoadMultiplier(value float64) {
	clamped := value
	if clamped < minLoadMultiplier {
		clamped = minLoadMultiplier
	}
	if clamped > maxLoadMultiplier {
		clamped = maxLoadMultiplier
	}
	m.loadMultiplier.Store(math.Float64bits(clamped))

	if clamped < 1.0 {
		logInfo(m.logger, "system under load, tightening rate limits", map[string]any{
			"multiplier": clamped,
		})
	}
}

// LoadMultiplier returns the current load multiplier.
func (m *Manager) LoadMultiplier() float64 {
	return math.Float64frombits(m.loadMultiplier.Load())
}

// ConfigureEndpoint upserts the policy for an endpoint. Live limiters for the
// endpoint, shared and per-client alike, are updated in place so a routine
// config reload does not reset in-flight budgets; only an algorithm family
// change rebuilds them.
func (m *Manager) ConfigureEndpoint(endpoint string, policy EndpointPolicy) {
	m.mu.Lock()
	m.configs[endpoint] = policy
	m.mu.Unlock()

	if existing, ok := m.endpointLimiters.Load(endpoint); ok {
		existing.(*limiterEntry).update(policy.Algorithm)
	}
	if existing, ok := m.peerLimiters.Load(endpoint); ok {
		set := existing.(*peerLimiterSet)
		set.limiters.Range(func(_, value any) bool {
			value.(*limiterEntry).update(policy.Algorithm)
			return true
		})
	}

	logInfo(m.logger, "updated admission policy", map[string]any{"endpoint": endpoint})
}

// RemoveEndpoint deletes the policy for an endpoint. Its limiters stay live
// until the next cleanup pass reclaims them.
func (m *Manager) RemoveEndpoint(endpoint string) {
	m.mu.Lock()
	delete(m.configs, endpoint)
	m.mu.Unlock()
}

// EndpointPolicyFor returns the policy configured for an endpoint.
func (m *Manager) EndpointPolicyFor(endpoint string) (EndpointPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.configs[endpoint]
	return policy, ok
}

// EndpointPolicies returns a copy of every configured endpoint policy.
func (m *Manager) EndpointPolicies() map[string]EndpointPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]EndpointPolicy, len(m.configs))
	for name, policy := range m.configs {
		out[name] = policy
	}
	return out
}

// GetStats returns telemetry counters as a JSON-friendly map. The read is a
// snapshot over atomics and policy metadata; no limiter state is touched, so
// observing stats never perturbs refill accounting.
func (m *Manager) GetStats() map[string]any {
	snap := m.Snapshot()

	endpoints := make(map[string]any)
	m.mu.RLock()
	for name, policy := range m.configs {
		endpoints[name] = map[string]any{
			"algorithm":         string(policy.Algorithm.Kind),
			"perPeer":           policy.PerPeer,
			"trustedMultiplier": policy.TrustedMultiplier,
		}
	}
	m.mu.RUnlock()

	return map[string]any{
		"endpoint_limiters": snap.EndpointLimiters,
		"peer_limiters":     snap.PeerLimiters,
		"load_multiplier":   snap.LoadMultiplier,
		"requests_allowed":  snap.Allowed,
		"requests_denied":   snap.Denied,
		"success_rate":      snap.SuccessRate(),
		"endpoints":         endpoints,
	}
}

// Snapshot returns the current counter values.
func (m *Manager) Snapshot() StatsSnapshot {
	var peers int64
	m.peerLimiters.Range(func(_, value any) bool {
		peers += value.(*peerLimiterSet).count.Load()
		return true
	})
	return StatsSnapshot{
		Allowed:          m.allowed.Load(),
		Denied:           m.denied.Load(),
		EndpointLimiters: int(m.endpointCount.Load()),
		PeerLimiters:     int(peers),
		LoadMultiplier:   m.LoadMultiplier(),
	}
}

// CleanupUnusedLimiters removes limiters whose endpoint no longer has a
// policy and returns how many were dropped. Idle clients under a still
// configured endpoint are kept; there is deliberately no per-client TTL here.
func (m *Manager) CleanupUnusedLimiters() int {
	m.mu.RLock()
	configured := make(map[string]struct{}, len(m.configs))
	for name := range m.configs {
		configured[name] = struct{}{}
	}
	m.mu.RUnlock()

	removed := 0
	m.peerLimiters.Range(func(key, value any) bool {
		endpoint := key.(string)
		if _, ok := configured[endpoint]; ok {
			return true
		}
		set := value.(*peerLimiterSet)
		m.peerLimiters.Delete(endpoint)
		removed += int(set.count.Load())
		return true
	})
	m.endpointLimiters.Range(func(key, _ any) bool {
		endpoint := key.(string)
		if _, ok := configured[endpoint]; ok {
			return true
		}
		m.endpointLimiters.Delete(endpoint)
		m.endpointCount.Add(-1)
		removed++
		return true
	})

	if removed > 0 {
		logInfo(m.logger, "cleaned up unused limiters", map[string]any{"removed": removed})
	}
	return removed
}

// ResetAllLimiters clears every limiter and restores the load multiplier to
// 1.0. Budgets refill from scratch on the next request.
func (m *Manager) ResetAllLimiters() {
	m.endpointLimiters.Range(func(key, _ any) bool {
		m.endpointLimiters.Delete(key)
		return true
	})
	m.peerLimiters.Range(func(key, _ any) bool {
		m.peerLimiters.Delete(key)
		return true
	})
	m.endpointCount.Store(0)
	m.loadMultiplier.Store(math.Float64bits(1.0))
	logInfo(m.logger, "all rate limiters reset", nil)
}

// Healthy reports whether the manager is in a sane operating state: the load
// multiplier within clamped bounds and the limiter population below a
// runaway threshold.
func (m *Manager) Healthy() bool {
	multiplier := m.LoadMultiplier()
	if multiplier < minLoadMultiplier || multiplier > maxLoadMultiplier {
		return false
	}
	snap := m.Snapshot()
	return snap.EndpointLimiters+snap.PeerLimiters < 100000
}

// adjustCost divides cost by the load multiplier, rounding to nearest and
// clamping to at least one token.
func adjustCost(cost uint32, multiplier float64) uint32 {
	if multiplier <= 0 {
		return cost
	}
	adjusted := math.Round(float64(cost) / multiplier)
	if adjusted < 1 {
		return 1
	}
	return uint32(adjusted)
}
