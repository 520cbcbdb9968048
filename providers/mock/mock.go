// Package mock provides a synthetic in-process provider with configurable
// latency, failure rate, pricing, and quality. It backs the test suite and
// the traffic simulator; no network calls are made.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/pkg/types"
)

// Defaults for a mock provider with no options applied.
const (
	DefaultCostPerToken = 0.00002
	DefaultLatency      = 20 * time.Millisecond
	DefaultQuality      = 0.85
)

// Provider simulates an LLM backend. All knobs are fixed at construction
// except health, which tests flip at runtime.
type Provider struct {
	id            string
	models        []string
	costPerToken  float64
	baseLatency   time.Duration
	latencyJitter time.Duration
	failureRate   float64
	rateLimitRate float64
	quality       float64
	content       string

	healthy atomic.Bool
	calls   atomic.Int64
	fails   atomic.Int64
	probes  atomic.Int64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a mock provider with the given identifier.
func New(id string, opts ...Option) *Provider {
	p := &Provider{
		id:           id,
		models:       []string{"mock-small", "mock-medium", "mock-large"},
		costPerToken: DefaultCostPerToken,
		baseLatency:  DefaultLatency,
		quality:      DefaultQuality,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	p.healthy.Store(true)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds a mock provider from registration config. Simulation
// knobs ride in Metadata: latency_ms, jitter_ms, failure_rate,
// rate_limit_rate, quality, models (comma separated), content, seed.
func NewFromConfig(cfg provider.Config) (provider.Provider, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("mock provider requires an id")
	}

	opts := []Option{}
	if cfg.CostPerToken > 0 {
		opts = append(opts, WithCostPerToken(cfg.CostPerToken))
	}

	for key, value := range cfg.Metadata {
		switch key {
		case "latency_ms":
			ms, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("mock provider %s: bad latency_ms %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithLatency(time.Duration(ms)*time.Millisecond, 0))
		case "jitter_ms":
			ms, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("mock provider %s: bad jitter_ms %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithLatencyJitter(time.Duration(ms)*time.Millisecond))
		case "failure_rate":
			rate, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("mock provider %s: bad failure_rate %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithFailureRate(rate))
		case "rate_limit_rate":
			rate, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("mock provider %s: bad rate_limit_rate %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithRateLimitRate(rate))
		case "quality":
			q, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("mock provider %s: bad quality %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithQuality(q))
		case "models":
			opts = append(opts, WithModels(strings.Split(value, ",")...))
		case "content":
			opts = append(opts, WithContent(value))
		case "seed":
			seed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("mock provider %s: bad seed %q: %w", cfg.ID, value, err)
			}
			opts = append(opts, WithSeed(seed))
		}
	}

	return New(cfg.ID, opts...), nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string {
	return p.id
}

// SupportedModels returns the configured model list.
func (p *Provider) SupportedModels() []string {
	return p.models
}

// BaseCostPerToken returns the configured USD price per token.
func (p *Provider) BaseCostPerToken() float64 {
	return p.costPerToken
}

// Complete simulates one completion: it sleeps for the configured latency,
// rolls the failure dice, and fabricates a response priced off real token
// usage.
func (p *Provider) Complete(ctx context.Context, req *types.Request) (*types.Response, error) {
	p.calls.Add(1)
	start := time.Now()

	if err := p.sleep(ctx, p.sampleLatency()); err != nil {
		p.fails.Add(1)
		return nil, llmerrors.NewTimeoutError(p.id, err.Error())
	}

	if !p.healthy.Load() {
		p.fails.Add(1)
		return nil, llmerrors.NewProviderError(p.id, 503, "mock provider marked unhealthy")
	}

	roll := p.randFloat64()
	if roll < p.rateLimitRate {
		p.fails.Add(1)
		return nil, llmerrors.NewRateLimitError(p.id, "simulated rate limit")
	}
	if roll < p.rateLimitRate+p.failureRate {
		p.fails.Add(1)
		return nil, llmerrors.NewProviderError(p.id, 500, "simulated provider failure")
	}

	tokens := p.sampleTokens(req.EffectiveMaxTokens())

	return &types.Response{
		ID:           req.ID,
		Content:      p.contentFor(req),
		Provider:     p.id,
		Model:        p.modelFor(req),
		TokensUsed:   tokens,
		Latency:      time.Since(start),
		CostUSD:      float64(tokens) * p.costPerToken,
		QualityScore: p.quality,
	}, nil
}

// HealthCheck reports the current health toggle.
func (p *Provider) HealthCheck(ctx context.Context) error {
	p.probes.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.healthy.Load() {
		return llmerrors.NewProviderError(p.id, 503, "mock provider marked unhealthy")
	}
	return nil
}

// SetHealthy flips the health toggle. An unhealthy provider fails every
// completion and health probe until flipped back.
func (p *Provider) SetHealthy(healthy bool) {
	p.healthy.Store(healthy)
}

// Calls returns the number of Complete invocations so far.
func (p *Provider) Calls() int64 {
	return p.calls.Load()
}

// Failures returns the number of failed Complete invocations so far.
func (p *Provider) Failures() int64 {
	return p.fails.Load()
}

// HealthChecks returns the number of HealthCheck invocations so far.
func (p *Provider) HealthChecks() int64 {
	return p.probes.Load()
}

func (p *Provider) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Provider) sampleLatency() time.Duration {
	if p.latencyJitter <= 0 {
		return p.baseLatency
	}
	return p.baseLatency + time.Duration(p.randFloat64()*float64(p.latencyJitter))
}

// sampleTokens fabricates usage between half and all of the request cap.
func (p *Provider) sampleTokens(maxTokens int) int {
	if maxTokens < 2 {
		return maxTokens
	}
	half := maxTokens / 2
	return half + int(p.randFloat64()*float64(maxTokens-half))
}

func (p *Provider) contentFor(req *types.Request) string {
	if p.content != "" {
		return p.content
	}
	return fmt.Sprintf("mock completion from %s for request %s", p.id, req.ID)
}

// modelFor maps the size preference onto the configured model list.
func (p *Provider) modelFor(req *types.Request) string {
	if len(p.models) == 0 {
		return "mock-model"
	}
	idx := 0
	switch req.ModelPreference {
	case types.ModelMedium:
		idx = len(p.models) / 2
	case types.ModelLarge:
		idx = len(p.models) - 1
	}
	return p.models[idx]
}

func (p *Provider) randFloat64() float64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64()
}
