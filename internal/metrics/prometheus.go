package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "llmlb"
)

// LatencyBuckets defines histogram buckets for request latency (in seconds).
// Provider calls are expected in the tens-to-hundreds of milliseconds.
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2,
	0.3, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0, 30.0,
}

// Gauge values for BreakerState.
const (
	BreakerStateClosed   = 0.0
	BreakerStateHalfOpen = 1.0
	BreakerStateOpen     = 2.0
)

// =============================================================================
// Request Metrics
// =============================================================================

var (
	// RequestsTotal counts completed requests by provider and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of completed requests",
		},
		[]string{"provider", "outcome"},
	)

	// RequestsFailed counts failed requests by provider and error type.
	RequestsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Total number of failed requests",
		},
		[]string{"provider", "error_type"},
	)

	// RetriesTotal counts retry attempts by the provider being retried away from.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"provider"},
	)

	// InFlight tracks requests currently inside the balancer.
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Requests currently being served",
		},
	)

	// AdmissionRejections counts requests rejected at the concurrency ceiling.
	AdmissionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Requests rejected because the balancer was at capacity",
		},
	)
)

// =============================================================================
// Latency Metrics
// =============================================================================

var (
	// RequestLatency tracks end-to-end request latency per provider.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "End-to-end request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts responses served from the response cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Responses served from the response cache",
		},
	)

	// CacheMisses counts cache lookups that fell through to a provider.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that missed",
		},
	)
)

// =============================================================================
// Circuit Breaker Metrics
// =============================================================================

var (
	// BreakerState exposes each provider's circuit state
	// (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// BreakerTrips counts transitions into the open state.
	BreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Circuit breaker transitions to open",
		},
		[]string{"provider"},
	)
)

// =============================================================================
// Token and Cost Metrics
// =============================================================================

var (
	// TokensTotal counts tokens consumed per provider.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens consumed",
		},
		[]string{"provider"},
	)

	// SpendTotal tracks cumulative spend in USD per provider.
	SpendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_usd_total",
			Help:      "Total spend in USD",
		},
		[]string{"provider"},
	)

	// BudgetSpentUSD is the spend inside the current budget window.
	BudgetSpentUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_spent_usd",
			Help:      "Spend accumulated in the rolling budget window",
		},
	)

	// BudgetRemainingUSD is the budget left in the current window.
	BudgetRemainingUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_remaining_usd",
			Help:      "Budget remaining in the rolling budget window",
		},
	)

	// BudgetRejections counts requests rejected by the budget check.
	BudgetRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_rejections_total",
			Help:      "Requests rejected because the budget was exhausted",
		},
	)
)
