package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/llmlb/llmlb"
	"github.com/llmlb/llmlb/providers"
)

// Config is the complete simulator configuration.
type Config struct {
	Providers []ProviderSpec `yaml:"providers"`
	Balancer  BalancerSpec   `yaml:"balancer"`
	Traffic   TrafficSpec    `yaml:"traffic"`
	Metrics   MetricsSpec    `yaml:"metrics"`
	Logging   LoggingSpec    `yaml:"logging"`
}

// ProviderSpec describes one provider in the scenario. Type selects a
// factory from the provider registry; an empty type means "mock". The
// latency and failure knobs shape mock providers only.
type ProviderSpec struct {
	ID            string            `yaml:"id"`
	Type          string            `yaml:"type"`
	CostPerToken  float64           `yaml:"cost_per_token"`
	BaseLatency   time.Duration     `yaml:"base_latency"`
	LatencyJitter time.Duration     `yaml:"latency_jitter"`
	FailureRate   float64           `yaml:"failure_rate"`
	RateLimitRate float64           `yaml:"rate_limit_rate"`
	Quality       float64           `yaml:"quality"`
	RPM           int               `yaml:"rpm"`
	Settings      map[string]string `yaml:"settings,omitempty"`
}

func (p ProviderSpec) kind() string {
	if p.Type == "" {
		return "mock"
	}
	return p.Type
}

// Config translates the spec into the registration config consumed by
// the provider factory and the balancer.
func (p ProviderSpec) Config() llmlb.ProviderConfig {
	meta := make(map[string]string, len(p.Settings)+5)
	for k, v := range p.Settings {
		meta[k] = v
	}
	if p.kind() == "mock" {
		meta["latency_ms"] = strconv.FormatInt(p.BaseLatency.Milliseconds(), 10)
		meta["jitter_ms"] = strconv.FormatInt(p.LatencyJitter.Milliseconds(), 10)
		meta["failure_rate"] = strconv.FormatFloat(p.FailureRate, 'f', -1, 64)
		meta["rate_limit_rate"] = strconv.FormatFloat(p.RateLimitRate, 'f', -1, 64)
	}
	if p.Quality > 0 {
		meta["quality"] = strconv.FormatFloat(p.Quality, 'f', -1, 64)
	}
	return llmlb.ProviderConfig{
		ID:                   p.ID,
		CostPerToken:         p.CostPerToken,
		MaxRequestsPerMinute: p.RPM,
		Metadata:             meta,
	}
}

// BalancerSpec maps onto the library options.
type BalancerSpec struct {
	Weights             WeightsSpec   `yaml:"weights"`
	Retry               RetrySpec     `yaml:"retry"`
	Breaker             BreakerSpec   `yaml:"breaker"`
	Cache               CacheSpec     `yaml:"cache"`
	BudgetUSD           float64       `yaml:"budget_usd"`
	MaxConcurrent       int           `yaml:"max_concurrent"`
	Overflow            string        `yaml:"overflow"` // reject, queue
	DefaultTimeout      time.Duration `yaml:"default_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // 0 disables probing
}

// WeightsSpec is the routing weight profile.
type WeightsSpec struct {
	Cost        float64 `yaml:"cost"`
	Latency     float64 `yaml:"latency"`
	Quality     float64 `yaml:"quality"`
	Reliability float64 `yaml:"reliability"`
}

// RetrySpec configures the retry loop.
type RetrySpec struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterFraction float64       `yaml:"jitter_fraction"`
}

// BreakerSpec configures the per-provider circuit breakers.
type BreakerSpec struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// CacheSpec configures the response cache.
type CacheSpec struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	CostReduction float64       `yaml:"cost_reduction"`
}

// TrafficSpec shapes the synthetic load.
type TrafficSpec struct {
	RPS         int           `yaml:"rps"`
	Duration    time.Duration `yaml:"duration"` // 0 runs until SIGINT/SIGTERM
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Prompts     []string      `yaml:"prompts"`
	RepeatRate  float64       `yaml:"repeat_rate"` // share of requests reusing a pool prompt
	Mix         PriorityMix   `yaml:"priority_mix"`
	Seed        int64         `yaml:"seed"` // 0 seeds from the clock
}

// PriorityMix weighs how often each priority class is issued.
type PriorityMix struct {
	Low      float64 `yaml:"low"`
	Normal   float64 `yaml:"normal"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// MetricsSpec contains the Prometheus endpoint settings.
type MetricsSpec struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingSpec contains logging settings.
type LoggingSpec struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a runnable simulation: three providers covering the
// premium/standard/economy spread, moderate traffic, metrics on :9090.
func DefaultConfig() *Config {
	lib := llmlb.DefaultConfig()

	return &Config{
		Providers: []ProviderSpec{
			{
				ID:            "premium",
				CostPerToken:  0.00003,
				BaseLatency:   60 * time.Millisecond,
				LatencyJitter: 20 * time.Millisecond,
				FailureRate:   0.01,
				Quality:       0.92,
			},
			{
				ID:            "standard",
				CostPerToken:  0.00002,
				BaseLatency:   120 * time.Millisecond,
				LatencyJitter: 40 * time.Millisecond,
				FailureRate:   0.02,
				Quality:       0.85,
			},
			{
				ID:            "economy",
				CostPerToken:  0.000008,
				BaseLatency:   250 * time.Millisecond,
				LatencyJitter: 80 * time.Millisecond,
				FailureRate:   0.05,
				Quality:       0.75,
			},
		},
		Balancer: BalancerSpec{
			Weights: WeightsSpec{
				Cost:        lib.Weights.Cost,
				Latency:     lib.Weights.Latency,
				Quality:     lib.Weights.Quality,
				Reliability: lib.Weights.Reliability,
			},
			Retry: RetrySpec{
				MaxAttempts:    lib.Retry.MaxAttempts,
				BaseDelay:      lib.Retry.BaseDelay,
				MaxDelay:       lib.Retry.MaxDelay,
				Multiplier:     lib.Retry.Multiplier,
				JitterFraction: lib.Retry.JitterFraction,
			},
			Breaker: BreakerSpec{
				FailureThreshold: lib.Breaker.FailureThreshold,
				SuccessThreshold: lib.Breaker.SuccessThreshold,
				OpenTimeout:      lib.Breaker.OpenTimeout,
				HalfOpenMaxCalls: lib.Breaker.HalfOpenMaxCalls,
			},
			Cache: CacheSpec{
				Enabled:       lib.CacheEnabled,
				TTL:           lib.CacheTTL,
				MaxEntries:    lib.CacheMaxEntries,
				CostReduction: lib.CacheCostReduction,
			},
			BudgetUSD:           50,
			MaxConcurrent:       lib.MaxConcurrent,
			Overflow:            string(lib.Overflow),
			DefaultTimeout:      500 * time.Millisecond,
			HealthCheckInterval: 10 * time.Second,
		},
		Traffic: TrafficSpec{
			RPS:         50,
			Duration:    30 * time.Second,
			MaxTokens:   500,
			Temperature: 0.7,
			RepeatRate:  0.3,
			Mix:         PriorityMix{Low: 0.2, Normal: 0.6, High: 0.15, Critical: 0.05},
		},
		Metrics: MetricsSpec{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Logging: LoggingSpec{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads and parses a YAML configuration file over the defaults.
// Environment variables in the format ${VAR_NAME} are expanded. An empty
// path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider[%d] %q: duplicate id", i, p.ID)
		}
		seen[p.ID] = true
		if _, ok := providers.Get(p.kind()); !ok {
			return fmt.Errorf("provider[%d] %q: unknown type %q (available: %v)", i, p.ID, p.kind(), providers.List())
		}
		if p.kind() != "mock" && (p.BaseLatency != 0 || p.LatencyJitter != 0 || p.FailureRate != 0 || p.RateLimitRate != 0) {
			return fmt.Errorf("provider[%d] %q: latency and failure knobs only apply to mock providers", i, p.ID)
		}
		if p.CostPerToken < 0 {
			return fmt.Errorf("provider[%d] %q: cost_per_token cannot be negative", i, p.ID)
		}
		if p.FailureRate < 0 || p.FailureRate > 1 {
			return fmt.Errorf("provider[%d] %q: failure_rate must be within [0, 1]", i, p.ID)
		}
		if p.RateLimitRate < 0 || p.RateLimitRate > 1 {
			return fmt.Errorf("provider[%d] %q: rate_limit_rate must be within [0, 1]", i, p.ID)
		}
		if p.Quality < 0 || p.Quality > 1 {
			return fmt.Errorf("provider[%d] %q: quality must be within [0, 1]", i, p.ID)
		}
		if p.RPM < 0 {
			return fmt.Errorf("provider[%d] %q: rpm cannot be negative", i, p.ID)
		}
	}

	switch c.Balancer.Overflow {
	case "", string(llmlb.OverflowReject), string(llmlb.OverflowQueue):
	default:
		return fmt.Errorf("balancer.overflow must be %q or %q", llmlb.OverflowReject, llmlb.OverflowQueue)
	}
	if c.Balancer.MaxConcurrent <= 0 {
		return fmt.Errorf("balancer.max_concurrent must be positive")
	}
	if c.Balancer.BudgetUSD < 0 {
		return fmt.Errorf("balancer.budget_usd cannot be negative")
	}

	if c.Traffic.RPS <= 0 {
		return fmt.Errorf("traffic.rps must be positive")
	}
	if c.Traffic.Duration < 0 {
		return fmt.Errorf("traffic.duration cannot be negative")
	}
	if c.Traffic.RepeatRate < 0 || c.Traffic.RepeatRate > 1 {
		return fmt.Errorf("traffic.repeat_rate must be within [0, 1]")
	}
	mix := c.Traffic.Mix
	if mix.Low < 0 || mix.Normal < 0 || mix.High < 0 || mix.Critical < 0 {
		return fmt.Errorf("traffic.priority_mix shares cannot be negative")
	}
	if mix.Low+mix.Normal+mix.High+mix.Critical <= 0 {
		return fmt.Errorf("traffic.priority_mix must have at least one positive share")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return fmt.Errorf("metrics.addr is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return fmt.Errorf("metrics.path is required when metrics are enabled")
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}

	return nil
}

// BalancerOptions translates the spec into library options.
func (c *Config) BalancerOptions() []llmlb.Option {
	b := c.Balancer

	opts := []llmlb.Option{
		llmlb.WithWeights(llmlb.Weights{
			Cost:        b.Weights.Cost,
			Latency:     b.Weights.Latency,
			Quality:     b.Weights.Quality,
			Reliability: b.Weights.Reliability,
		}),
		llmlb.WithRetryPolicy(llmlb.RetryPolicy{
			MaxAttempts:    b.Retry.MaxAttempts,
			BaseDelay:      b.Retry.BaseDelay,
			MaxDelay:       b.Retry.MaxDelay,
			Multiplier:     b.Retry.Multiplier,
			JitterFraction: b.Retry.JitterFraction,
		}),
		llmlb.WithBreakerConfig(llmlb.BreakerConfig{
			FailureThreshold: b.Breaker.FailureThreshold,
			SuccessThreshold: b.Breaker.SuccessThreshold,
			OpenTimeout:      b.Breaker.OpenTimeout,
			HalfOpenMaxCalls: b.Breaker.HalfOpenMaxCalls,
		}),
		llmlb.WithMaxConcurrent(b.MaxConcurrent, overflowPolicy(b.Overflow)),
		llmlb.WithDefaultTimeout(b.DefaultTimeout),
	}

	if b.Cache.Enabled {
		opts = append(opts, llmlb.WithCache(b.Cache.TTL, b.Cache.MaxEntries, b.Cache.CostReduction))
	} else {
		opts = append(opts, llmlb.WithCacheDisabled())
	}
	if b.BudgetUSD > 0 {
		opts = append(opts, llmlb.WithBudget(b.BudgetUSD))
	}
	if b.HealthCheckInterval > 0 {
		opts = append(opts, llmlb.WithHealthChecks(b.HealthCheckInterval))
	}

	return opts
}

func overflowPolicy(s string) llmlb.OverflowPolicy {
	if s == string(llmlb.OverflowQueue) {
		return llmlb.OverflowQueue
	}
	return llmlb.OverflowReject
}
