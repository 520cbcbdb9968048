package mock

import (
	"math/rand"
	"time"
)

// Option configures the mock provider.
type Option func(*Provider)

// WithModels sets the supported model list.
func WithModels(models ...string) Option {
	return func(p *Provider) {
		p.models = models
	}
}

// WithCostPerToken sets the USD price per token.
func WithCostPerToken(cost float64) Option {
	return func(p *Provider) {
		if cost >= 0 {
			p.costPerToken = cost
		}
	}
}

// WithLatency sets the simulated base latency and jitter ceiling.
func WithLatency(base, jitter time.Duration) Option {
	return func(p *Provider) {
		p.baseLatency = base
		p.latencyJitter = jitter
	}
}

// WithLatencyJitter sets only the jitter ceiling.
func WithLatencyJitter(jitter time.Duration) Option {
	return func(p *Provider) {
		p.latencyJitter = jitter
	}
}

// WithFailureRate sets the probability in [0, 1] that a completion fails
// with a simulated 500.
func WithFailureRate(rate float64) Option {
	return func(p *Provider) {
		p.failureRate = clampRate(rate)
	}
}

// WithRateLimitRate sets the probability in [0, 1] that a completion fails
// with a simulated 429.
func WithRateLimitRate(rate float64) Option {
	return func(p *Provider) {
		p.rateLimitRate = clampRate(rate)
	}
}

// WithQuality sets the quality score attached to every response.
func WithQuality(quality float64) Option {
	return func(p *Provider) {
		p.quality = clampRate(quality)
	}
}

// WithContent sets a fixed response body instead of the generated one.
func WithContent(content string) Option {
	return func(p *Provider) {
		p.content = content
	}
}

// WithSeed makes latency jitter, token usage, and failure rolls
// deterministic.
func WithSeed(seed int64) Option {
	return func(p *Provider) {
		p.rng = rand.New(rand.NewSource(seed))
	}
}

// WithHealthy sets the initial health toggle.
func WithHealthy(healthy bool) Option {
	return func(p *Provider) {
		p.healthy.Store(healthy)
	}
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
