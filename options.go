package llmlb

import (
	"log/slog"
	"time"

	"github.com/llmlb/llmlb/internal/resilience"
	"github.com/llmlb/llmlb/internal/retry"
	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/routing"
)

// OverflowPolicy decides what happens to requests arriving while the
// balancer is already running MaxConcurrent requests.
type OverflowPolicy string

const (
	// OverflowReject fails excess requests immediately with
	// too_many_requests.
	OverflowReject OverflowPolicy = "reject"
	// OverflowQueue blocks excess requests until a slot frees or their
	// context is cancelled.
	OverflowQueue OverflowPolicy = "queue"
)

// registeredProvider pairs a provider instance with its registration config.
type registeredProvider struct {
	prov provider.Provider
	cfg  provider.Config
}

// Config holds all configuration for the Balancer.
type Config struct {
	// Providers registered at construction time.
	providers []registeredProvider

	// Routing
	Weights routing.Weights

	// Retry / backoff
	Retry retry.Policy

	// Circuit breaking (applied to every provider)
	Breaker resilience.CircuitBreakerConfig

	// Response cache
	CacheEnabled       bool
	CacheTTL           time.Duration
	CacheMaxEntries    int
	CacheCostReduction float64

	// BudgetLimitUSD is the rolling hourly spend ceiling. Zero or negative
	// disables enforcement.
	BudgetLimitUSD float64

	// Admission control
	MaxConcurrent int
	Overflow      OverflowPolicy

	// DefaultTimeout bounds a single provider attempt when the request
	// carries no timeout of its own.
	DefaultTimeout time.Duration

	// Background health probing
	HealthChecksEnabled bool
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration

	// Logging
	Logger *slog.Logger
}

// Option is a function that configures the Balancer.
type Option func(*Config)

// DefaultConfig returns sensible defaults: latency-leaning weights, three
// attempts with exponential backoff, caching on, no budget ceiling, and a
// thousand concurrent requests.
func DefaultConfig() *Config {
	return &Config{
		Weights:             routing.DefaultWeights(),
		Retry:               retry.DefaultPolicy(),
		Breaker:             resilience.DefaultCircuitBreakerConfig(),
		CacheEnabled:        true,
		CacheTTL:            5 * time.Minute,
		CacheMaxEntries:     10000,
		CacheCostReduction:  0.9,
		BudgetLimitUSD:      0,
		MaxConcurrent:       1000,
		Overflow:            OverflowReject,
		DefaultTimeout:      200 * time.Millisecond,
		HealthChecksEnabled: false,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		Logger:              slog.Default(),
	}
}

// ProductionConfig returns the tuned profile for high-throughput
// deployments: latency weighted heavier, tighter attempt timeouts, faster
// breaker recovery, a larger cache, and a $500/h spend ceiling.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Weights = routing.Weights{Cost: 0.25, Latency: 0.45, Quality: 0.20, Reliability: 0.10}
	cfg.Retry = retry.Policy{
		MaxAttempts:    3,
		BaseDelay:      50 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     1.5,
		JitterFraction: 0.3,
	}
	cfg.Breaker.OpenTimeout = 30 * time.Second
	cfg.CacheTTL = 10 * time.Minute
	cfg.CacheMaxEntries = 50000
	cfg.CacheCostReduction = 0.95
	cfg.BudgetLimitUSD = 500
	cfg.MaxConcurrent = 2000
	cfg.DefaultTimeout = 150 * time.Millisecond
	cfg.HealthChecksEnabled = true
	cfg.HealthCheckInterval = 15 * time.Second
	return cfg
}

// WithConfig replaces the whole configuration with cfg. Providers added by
// earlier options are kept. Use it to start from ProductionConfig and layer
// further options on top.
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		if cfg == nil {
			return
		}
		providers := c.providers
		*c = *cfg
		c.providers = append(providers, cfg.providers...)
	}
}

// WithProvider registers a provider with its registration config.
//
// Example:
//
//	llmlb.WithProvider(prov, llmlb.ProviderConfig{
//	    CostPerToken:         0.00003,
//	    MaxRequestsPerMinute: 600,
//	})
func WithProvider(p provider.Provider, cfg provider.Config) Option {
	return func(c *Config) {
		c.providers = append(c.providers, registeredProvider{prov: p, cfg: cfg})
	}
}

// WithProviders registers providers with default settings: each provider's
// own base cost per token and no rate ceiling.
func WithProviders(ps ...provider.Provider) Option {
	return func(c *Config) {
		for _, p := range ps {
			c.providers = append(c.providers, registeredProvider{prov: p})
		}
	}
}

// WithWeights sets the routing weight profile. Weights are normalized to
// sum to 1 before use.
func WithWeights(w routing.Weights) Option {
	return func(c *Config) {
		c.Weights = w
	}
}

// WithRetryPolicy sets the backoff policy applied between dispatch
// attempts. Invalid fields are replaced with defaults.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Config) {
		c.Retry = p
	}
}

// WithBreakerConfig sets the circuit breaker thresholds applied to every
// provider.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Config) {
		c.Breaker = cfg
	}
}

// WithCache tunes the response cache. Non-positive values fall back to the
// defaults.
func WithCache(ttl time.Duration, maxEntries int, costReduction float64) Option {
	return func(c *Config) {
		c.CacheEnabled = true
		c.CacheTTL = ttl
		c.CacheMaxEntries = maxEntries
		c.CacheCostReduction = costReduction
	}
}

// WithCacheDisabled turns the response cache off entirely.
func WithCacheDisabled() Option {
	return func(c *Config) {
		c.CacheEnabled = false
	}
}

// WithBudget sets the rolling hourly spend ceiling in USD. Zero or negative
// disables enforcement.
func WithBudget(limitUSD float64) Option {
	return func(c *Config) {
		c.BudgetLimitUSD = limitUSD
	}
}

// WithMaxConcurrent bounds in-flight requests and selects the overflow
// policy for requests beyond the bound.
func WithMaxConcurrent(n int, policy OverflowPolicy) Option {
	return func(c *Config) {
		c.MaxConcurrent = n
		c.Overflow = policy
	}
}

// WithDefaultTimeout sets the per-attempt timeout applied to requests that
// carry none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = d
	}
}

// WithHealthChecks enables background provider probing at the given
// interval. A non-positive interval keeps the default of 30 seconds.
func WithHealthChecks(interval time.Duration) Option {
	return func(c *Config) {
		c.HealthChecksEnabled = true
		if interval > 0 {
			c.HealthCheckInterval = interval
		}
	}
}

// WithLogger sets the logger for the balancer. The logger is used for
// lifecycle, routing, and degradation messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
