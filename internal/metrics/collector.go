package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Latency window sizing: keep the most recent samples, dropping the oldest
// chunk when full so appends stay amortized O(1).
const (
	latencyWindowCap  = 10000
	latencyWindowDrop = 1000
)

// RequestMetrics describes one completed live provider call. Cache hits are
// recorded separately and never enter the latency window.
type RequestMetrics struct {
	Provider  string
	ErrorType string // taxonomy type for failures, empty on success
	Latency   time.Duration
	Tokens    int
	CostUSD   float64
	Success   bool
}

// Collector aggregates balancer-wide counters and the recent latency window,
// and mirrors everything into the Prometheus vectors.
type Collector struct {
	start time.Time

	total            atomic.Uint64
	succeeded        atomic.Uint64
	failed           atomic.Uint64
	cacheHits        atomic.Uint64
	cacheMisses      atomic.Uint64
	retries          atomic.Uint64
	breakerTrips     atomic.Uint64
	budgetRejects    atomic.Uint64
	admissionRejects atomic.Uint64
	totalCostMicro   atomic.Uint64 // USD * 1e6

	mu        sync.Mutex
	latencies []uint64 // milliseconds, most recent last
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		start:     time.Now(),
		latencies: make([]uint64, 0, latencyWindowCap),
	}
}

// RecordRequest records all metrics for a completed provider call.
func (c *Collector) RecordRequest(m *RequestMetrics) {
	c.total.Add(1)

	outcome := "success"
	if m.Success {
		c.succeeded.Add(1)
	} else {
		c.failed.Add(1)
		outcome = "failure"
		RequestsFailed.WithLabelValues(m.Provider, m.ErrorType).Inc()
	}
	RequestsTotal.WithLabelValues(m.Provider, outcome).Inc()

	if m.Latency > 0 {
		RequestLatency.WithLabelValues(m.Provider).Observe(m.Latency.Seconds())
	}
	if m.Success {
		c.appendLatency(uint64(m.Latency.Milliseconds()))
	}

	if m.Tokens > 0 {
		TokensTotal.WithLabelValues(m.Provider).Add(float64(m.Tokens))
	}
	if m.CostUSD > 0 {
		c.totalCostMicro.Add(uint64(m.CostUSD * 1e6))
		SpendTotal.WithLabelValues(m.Provider).Add(m.CostUSD)
	}
}

func (c *Collector) appendLatency(ms uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies = append(c.latencies, ms)
	if len(c.latencies) > latencyWindowCap {
		c.latencies = append(c.latencies[:0], c.latencies[latencyWindowDrop:]...)
	}
}

// RecordCacheHit counts a response served from cache, including its
// (reduced) cost.
func (c *Collector) RecordCacheHit(costUSD float64) {
	c.cacheHits.Add(1)
	CacheHits.Inc()
	if costUSD > 0 {
		c.totalCostMicro.Add(uint64(costUSD * 1e6))
	}
}

// RecordCacheMiss counts a lookup that fell through to a provider.
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Add(1)
	CacheMisses.Inc()
}

// RecordRetry counts a retry away from the given provider.
func (c *Collector) RecordRetry(provider string) {
	c.retries.Add(1)
	RetriesTotal.WithLabelValues(provider).Inc()
}

// RecordBreakerState mirrors a breaker transition into the state gauge and
// counts trips into open.
func (c *Collector) RecordBreakerState(provider string, state float64) {
	BreakerState.WithLabelValues(provider).Set(state)
	if state == BreakerStateOpen {
		c.breakerTrips.Add(1)
		BreakerTrips.WithLabelValues(provider).Inc()
	}
}

// RecordAdmissionRejection counts a request refused at the concurrency
// ceiling.
func (c *Collector) RecordAdmissionRejection() {
	c.admissionRejects.Add(1)
	AdmissionRejections.Inc()
}

// RecordBudgetRejection counts a request refused by the budget check.
func (c *Collector) RecordBudgetRejection() {
	c.budgetRejects.Add(1)
	BudgetRejections.Inc()
}

// RecordBudget mirrors the budget window into the gauges.
func (c *Collector) RecordBudget(spentUSD, remainingUSD float64) {
	BudgetSpentUSD.Set(spentUSD)
	BudgetRemainingUSD.Set(remainingUSD)
}

// RequestStarted marks a request entering the balancer.
func (c *Collector) RequestStarted() {
	InFlight.Inc()
}

// RequestFinished marks a request leaving the balancer.
func (c *Collector) RequestFinished() {
	InFlight.Dec()
}

// RequestsPerSecond returns the average request rate since the collector was
// created.
func (c *Collector) RequestsPerSecond() float64 {
	elapsed := time.Since(c.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.total.Load()) / elapsed
}

// AverageLatency returns the mean of the latency window.
func (c *Collector) AverageLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.latencies) == 0 {
		return 0
	}
	var sum uint64
	for _, ms := range c.latencies {
		sum += ms
	}
	return time.Duration(sum/uint64(len(c.latencies))) * time.Millisecond
}

// Percentile returns the given latency percentile (p in (0, 1]) over the
// window. The window itself is never reordered; a copy is sorted.
func (c *Collector) Percentile(p float64) time.Duration {
	c.mu.Lock()
	sorted := make([]uint64, len(c.latencies))
	copy(sorted, c.latencies)
	c.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return time.Duration(sorted[idx]) * time.Millisecond
}

// Snapshot is a point-in-time copy of the balancer-wide aggregates.
type Snapshot struct {
	TotalRequests       uint64  `json:"total_requests"`
	Succeeded           uint64  `json:"succeeded"`
	Failed              uint64  `json:"failed"`
	CacheHits           uint64  `json:"cache_hits"`
	CacheMisses         uint64  `json:"cache_misses"`
	Retries             uint64  `json:"retries"`
	BreakerTrips        uint64  `json:"breaker_trips"`
	BudgetRejections    uint64  `json:"budget_rejections"`
	AdmissionRejections uint64  `json:"admission_rejections"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
	RequestsPerSecond   float64 `json:"requests_per_second"`
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	P50LatencyMs        float64 `json:"p50_latency_ms"`
	P95LatencyMs        float64 `json:"p95_latency_ms"`
	P99LatencyMs        float64 `json:"p99_latency_ms"`
}

// Snapshot returns a detached copy of the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:       c.total.Load(),
		Succeeded:           c.succeeded.Load(),
		Failed:              c.failed.Load(),
		CacheHits:           c.cacheHits.Load(),
		CacheMisses:         c.cacheMisses.Load(),
		Retries:             c.retries.Load(),
		BreakerTrips:        c.breakerTrips.Load(),
		BudgetRejections:    c.budgetRejects.Load(),
		AdmissionRejections: c.admissionRejects.Load(),
		TotalCostUSD:        float64(c.totalCostMicro.Load()) / 1e6,
		RequestsPerSecond:   c.RequestsPerSecond(),
		AvgLatencyMs:        float64(c.AverageLatency().Milliseconds()),
		P50LatencyMs:        float64(c.Percentile(0.50).Milliseconds()),
		P95LatencyMs:        float64(c.Percentile(0.95).Milliseconds()),
		P99LatencyMs:        float64(c.Percentile(0.99).Milliseconds()),
	}
}
