// Package metrics tracks per-provider health and balancer-wide aggregates.
// Provider stats sit on the routing hot path, so every field a scoring pass
// reads is an atomic; no locks are taken per request.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Seed values applied when a provider is registered. New providers start
// slightly below perfect so one early failure does not dominate.
const (
	initialLatencyMs = 100
	initialSuccessBP = 9900
	initialQualityBP = 8500

	bpScale = 10000
)

// ProviderStats holds the live health metrics for one provider.
type ProviderStats struct {
	id string

	latencyMsEMA     atomic.Uint64 // milliseconds
	successRateBP    atomic.Uint64 // basis points
	qualityBP        atomic.Uint64 // basis points
	costPerTokenBits atomic.Uint64 // math.Float64bits of USD per token
	lastSuccessUnix  atomic.Int64
	lastFailureUnix  atomic.Int64

	totalRequests       atomic.Uint64
	totalSuccesses      atomic.Uint64
	totalFailures       atomic.Uint64
	consecutiveFailures atomic.Uint32
}

func newProviderStats(id string, costPerToken float64) *ProviderStats {
	s := &ProviderStats{id: id}
	s.latencyMsEMA.Store(initialLatencyMs)
	s.successRateBP.Store(initialSuccessBP)
	s.qualityBP.Store(initialQualityBP)
	s.costPerTokenBits.Store(math.Float64bits(costPerToken))
	s.lastSuccessUnix.Store(time.Now().Unix())
	return s
}

// ID returns the provider identifier these stats belong to.
func (s *ProviderStats) ID() string { return s.id }

// RecordSuccess folds a successful call into the running averages. A
// non-positive quality leaves the quality estimate untouched.
func (s *ProviderStats) RecordSuccess(latency time.Duration, quality float64) {
	s.totalRequests.Add(1)
	s.totalSuccesses.Add(1)
	s.consecutiveFailures.Store(0)
	s.lastSuccessUnix.Store(time.Now().Unix())

	ms := uint64(latency.Milliseconds())
	for {
		old := s.latencyMsEMA.Load()
		if s.latencyMsEMA.CompareAndSwap(old, (old*9+ms)/10) {
			break
		}
	}

	for {
		old := s.successRateBP.Load()
		if s.successRateBP.CompareAndSwap(old, (old*99+bpScale)/100) {
			break
		}
	}

	if quality > 0 {
		sample := uint64(quality * bpScale)
		if sample > bpScale {
			sample = bpScale
		}
		for {
			old := s.qualityBP.Load()
			if s.qualityBP.CompareAndSwap(old, (old*99+sample)/100) {
				break
			}
		}
	}
}

// RecordFailure folds a failed call into the running averages.
func (s *ProviderStats) RecordFailure() {
	s.totalRequests.Add(1)
	s.totalFailures.Add(1)
	s.consecutiveFailures.Add(1)
	s.lastFailureUnix.Store(time.Now().Unix())

	for {
		old := s.successRateBP.Load()
		if s.successRateBP.CompareAndSwap(old, (old*99)/100) {
			break
		}
	}
}

// Latency returns the smoothed request latency.
func (s *ProviderStats) Latency() time.Duration {
	return time.Duration(s.latencyMsEMA.Load()) * time.Millisecond
}

// SuccessRate returns the smoothed success rate in [0, 1].
func (s *ProviderStats) SuccessRate() float64 {
	return float64(s.successRateBP.Load()) / bpScale
}

// Quality returns the smoothed quality estimate in [0, 1].
func (s *ProviderStats) Quality() float64 {
	return float64(s.qualityBP.Load()) / bpScale
}

// CostPerToken returns the current USD price per token.
func (s *ProviderStats) CostPerToken() float64 {
	return math.Float64frombits(s.costPerTokenBits.Load())
}

// SetCostPerToken updates the price used for scoring and budget estimates.
func (s *ProviderStats) SetCostPerToken(v float64) {
	s.costPerTokenBits.Store(math.Float64bits(v))
}

// LastSuccess returns the time of the most recent successful call. For a
// fresh provider this is its registration time.
func (s *ProviderStats) LastSuccess() time.Time {
	return time.Unix(s.lastSuccessUnix.Load(), 0)
}

// SecondsSinceSuccess returns the age of the last success, never negative.
func (s *ProviderStats) SecondsSinceSuccess() float64 {
	age := time.Since(s.LastSuccess()).Seconds()
	if age < 0 {
		return 0
	}
	return age
}

// ConsecutiveFailures returns the current failure streak.
func (s *ProviderStats) ConsecutiveFailures() uint32 {
	return s.consecutiveFailures.Load()
}

// ProviderSnapshot is a point-in-time copy of one provider's stats.
type ProviderSnapshot struct {
	ID                  string        `json:"id"`
	AvgLatency          time.Duration `json:"avg_latency"`
	AvgLatencyMs        float64       `json:"avg_latency_ms"`
	SuccessRate         float64       `json:"success_rate"`
	Quality             float64       `json:"quality"`
	CostPerToken        float64       `json:"cost_per_token"`
	LastSuccess         time.Time     `json:"last_success"`
	TotalRequests       uint64        `json:"total_requests"`
	TotalSuccesses      uint64        `json:"total_successes"`
	TotalFailures       uint64        `json:"total_failures"`
	ConsecutiveFailures uint32        `json:"consecutive_failures"`
}

// Snapshot copies the current values. The copy is detached: mutating it has
// no effect on live stats.
func (s *ProviderStats) Snapshot() ProviderSnapshot {
	lat := s.Latency()
	return ProviderSnapshot{
		ID:                  s.id,
		AvgLatency:          lat,
		AvgLatencyMs:        float64(lat.Milliseconds()),
		SuccessRate:         s.SuccessRate(),
		Quality:             s.Quality(),
		CostPerToken:        s.CostPerToken(),
		LastSuccess:         s.LastSuccess(),
		TotalRequests:       s.totalRequests.Load(),
		TotalSuccesses:      s.totalSuccesses.Load(),
		TotalFailures:       s.totalFailures.Load(),
		ConsecutiveFailures: s.consecutiveFailures.Load(),
	}
}

// Store maps provider IDs to their stats and preserves registration order,
// which the routing engine uses for deterministic tie-breaks.
type Store struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
	order []string
}

// NewStore creates an empty provider stats store.
func NewStore() *Store {
	return &Store{stats: make(map[string]*ProviderStats)}
}

// Register creates stats for a provider, seeding the cost dimension. It is
// idempotent: re-registering returns the existing entry unchanged.
func (st *Store) Register(id string, costPerToken float64) *ProviderStats {
	st.mu.RLock()
	s, ok := st.stats[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok = st.stats[id]; ok {
		return s
	}
	s = newProviderStats(id, costPerToken)
	st.stats[id] = s
	st.order = append(st.order, id)
	return s
}

// Get returns the stats for a provider.
func (st *Store) Get(id string) (*ProviderStats, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.stats[id]
	return s, ok
}

// InOrder returns all stats in registration order.
func (st *Store) InOrder() []*ProviderStats {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*ProviderStats, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.stats[id])
	}
	return out
}

// Snapshots returns snapshots of every provider in registration order.
func (st *Store) Snapshots() []ProviderSnapshot {
	providers := st.InOrder()
	out := make([]ProviderSnapshot, 0, len(providers))
	for _, s := range providers {
		out = append(out, s.Snapshot())
	}
	return out
}
