package llmlb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/llmlb/llmlb/internal/budget"
	"github.com/llmlb/llmlb/internal/cache"
	"github.com/llmlb/llmlb/internal/health"
	"github.com/llmlb/llmlb/internal/metrics"
	"github.com/llmlb/llmlb/internal/ratelimit"
	"github.com/llmlb/llmlb/internal/resilience"
	"github.com/llmlb/llmlb/internal/retry"
	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/pkg/types"
	"github.com/llmlb/llmlb/routing"
)

// Balancer routes completion requests across the registered providers,
// balancing cost, latency, quality, and reliability while containing
// provider failures.
//
// Balancer is safe for concurrent use by multiple goroutines.
type Balancer struct {
	providers map[string]provider.Provider
	order     []string

	engine    *routing.Engine
	stats     *metrics.Store
	collector *metrics.Collector
	breakers  *resilience.Registry
	cache     *cache.ResponseCache
	budget    *budget.Tracker
	limiter   *ratelimit.ProviderLimiter
	sem       *resilience.Semaphore
	retry     retry.Policy
	checker   *health.Checker
	logger    *slog.Logger
	config    *Config

	healthCancel context.CancelFunc
	closed       atomic.Bool

	mu sync.RWMutex
}

// New creates a balancer with the given options.
//
// Example:
//
//	lb, err := llmlb.New(
//	    llmlb.WithProviders(fast, cheap),
//	    llmlb.WithWeights(routing.Weights{Cost: 0.5, Latency: 0.3, Quality: 0.1, Reliability: 0.1}),
//	    llmlb.WithBudget(100),
//	)
func New(opts ...Option) (*Balancer, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("routing weights: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Balancer{
		providers: make(map[string]provider.Provider),
		engine:    routing.NewEngine(cfg.Weights),
		stats:     metrics.NewStore(),
		collector: metrics.NewCollector(),
		breakers:  resilience.NewRegistry(cfg.Breaker),
		budget:    budget.NewTracker(cfg.BudgetLimitUSD),
		limiter:   ratelimit.New(),
		sem:       resilience.NewSemaphore(cfg.MaxConcurrent),
		retry:     cfg.Retry.Normalize(),
		logger:    cfg.Logger,
		config:    cfg,
	}

	if cfg.CacheEnabled {
		b.cache = cache.New(cache.Config{
			TTL:           cfg.CacheTTL,
			MaxEntries:    cfg.CacheMaxEntries,
			CostReduction: cfg.CacheCostReduction,
		})
	}

	b.breakers.OnStateChange(func(name string, from, to resilience.CircuitState) {
		b.collector.RecordBreakerState(name, breakerGauge(to))
		switch to {
		case resilience.StateOpen:
			b.logger.Warn("circuit breaker opened", "provider", name, "from", from.String())
		case resilience.StateClosed:
			b.logger.Info("circuit breaker closed", "provider", name)
		case resilience.StateHalfOpen:
			b.logger.Info("circuit breaker half-open", "provider", name)
		}
	})

	for _, rp := range cfg.providers {
		if err := b.RegisterProvider(rp.prov, rp.cfg); err != nil {
			return nil, err
		}
	}

	if cfg.HealthChecksEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		b.healthCancel = cancel
		b.checker = health.NewChecker(health.Config{
			Enabled:  true,
			Interval: cfg.HealthCheckInterval,
			Timeout:  cfg.HealthCheckTimeout,
		}, b.providerList, b.stats, b.logger)
		b.checker.Start(ctx)
	}

	b.logger.Info("balancer initialized",
		"providers", len(b.order),
		"cache_enabled", cfg.CacheEnabled,
		"budget_usd", cfg.BudgetLimitUSD,
		"max_concurrent", cfg.MaxConcurrent,
	)

	return b, nil
}

// RegisterProvider adds a provider to the balancer. The config may override
// the provider's identifier and pricing and set a per-minute rate ceiling.
// Registering the same identifier twice is an error.
func (b *Balancer) RegisterProvider(p provider.Provider, cfg provider.Config) error {
	if p == nil {
		return fmt.Errorf("provider is nil")
	}

	id := cfg.ID
	if id == "" {
		id = p.ID()
	}
	if id == "" {
		return fmt.Errorf("provider has no identifier")
	}

	costPerToken := cfg.CostPerToken
	if costPerToken <= 0 {
		costPerToken = p.BaseCostPerToken()
	}

	b.mu.Lock()
	if _, exists := b.providers[id]; exists {
		b.mu.Unlock()
		return fmt.Errorf("provider %s already registered", id)
	}
	b.providers[id] = p
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.stats.Register(id, costPerToken)
	b.limiter.Set(id, cfg.MaxRequestsPerMinute)

	b.logger.Info("provider registered",
		"provider", id,
		"cost_per_token", costPerToken,
		"rpm_limit", cfg.MaxRequestsPerMinute,
	)
	return nil
}

// Complete serves a single completion request: it validates, admits,
// consults the cache and budget, then routes and dispatches with retries.
// Callers receive either a response or one typed error describing the
// terminal outcome.
func (b *Balancer) Complete(ctx context.Context, req *types.Request) (*types.Response, error) {
	if req == nil {
		return nil, llmerrors.NewInvalidRequestError("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if b.config.Overflow == OverflowQueue {
		if err := b.sem.Acquire(ctx); err != nil {
			b.collector.RecordAdmissionRejection()
			return nil, err
		}
	} else if !b.sem.TryAcquire() {
		b.collector.RecordAdmissionRejection()
		return nil, llmerrors.NewOverloadedError(b.sem.Capacity())
	}
	defer b.sem.Release()

	b.collector.RequestStarted()
	defer b.collector.RequestFinished()

	if b.cache != nil {
		if hit, ok := b.cache.Get(req); ok {
			hit.ID = req.ID
			b.collector.RecordCacheHit(hit.CostUSD)
			b.budget.Charge(hit.CostUSD)
			b.logger.Debug("cache hit", "request", req.ID, "provider", hit.Provider)
			return hit, nil
		}
		b.collector.RecordCacheMiss()
	}

	estimated := b.estimateCost(req)
	if status := b.budget.Check(estimated); !status.Allowed {
		b.collector.RecordBudgetRejection()
		b.logger.Warn("request rejected by budget",
			"request", req.ID,
			"estimated_usd", estimated,
			"remaining_usd", status.RemainingUSD,
		)
		return nil, llmerrors.NewBudgetExceededError(estimated, status.RemainingUSD)
	}

	resp, err := b.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	b.budget.Charge(resp.CostUSD)
	if b.budget.Enabled() {
		status := b.budget.Status()
		b.collector.RecordBudget(status.SpentUSD, status.RemainingUSD)
	}

	if b.cache != nil {
		b.cache.Set(req, resp)
	}
	return resp, nil
}

// dispatch runs the route-execute-retry loop. Each attempt re-selects among
// the providers not yet tried for this request, so retries fan out instead
// of hammering one backend.
func (b *Balancer) dispatch(ctx context.Context, req *types.Request) (*types.Response, error) {
	tried := make(map[string]bool)
	var (
		lastErr      error
		lastProvider string
	)

	for attempt := 0; attempt < b.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			b.collector.RecordRetry(lastProvider)
			if err := retry.Sleep(ctx, b.retry.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		decision, err := b.selectProvider(req, tried)
		if err != nil {
			if attempt == 0 {
				return nil, err
			}
			// Eligible providers ran out mid-request; surface the last
			// real failure as the cause.
			return nil, llmerrors.NewMaxRetriesError(attempt, lastErr)
		}

		id := decision.Provider
		tried[id] = true
		lastProvider = id

		if !b.breakers.Allow(id) {
			lastErr = llmerrors.NewCircuitOpenError(id)
			b.logger.Debug("breaker refused call",
				"request", req.ID, "provider", id, "attempt", attempt+1)
			continue
		}
		if !b.limiter.Allow(id) {
			lastErr = llmerrors.NewRateLimitError(id, "provider rpm ceiling reached")
			b.logger.Debug("rate limiter refused call",
				"request", req.ID, "provider", id, "attempt", attempt+1)
			continue
		}

		resp, err := b.executeAttempt(ctx, id, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		if !retry.Transient(err) {
			return nil, err
		}
		b.logger.Debug("attempt failed",
			"request", req.ID, "provider", id, "attempt", attempt+1, "error", err)
	}

	return nil, llmerrors.NewMaxRetriesError(b.retry.MaxAttempts, lastErr)
}

// executeAttempt issues one provider call under the per-attempt timeout and
// reports the outcome to the provider's breaker and stats exactly once.
func (b *Balancer) executeAttempt(ctx context.Context, id string, req *types.Request) (*types.Response, error) {
	b.mu.RLock()
	prov, ok := b.providers[id]
	b.mu.RUnlock()
	if !ok {
		return nil, llmerrors.NewProviderError(id, 0, "provider not registered")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.config.DefaultTimeout
	}

	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := prov.Complete(attemptCtx, req)
	latency := time.Since(start)

	stats, _ := b.stats.Get(id)

	if err != nil {
		if ctx.Err() != nil {
			// The caller abandoned the request; the call's eventual
			// result is unknown, so no outcome is recorded.
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = llmerrors.NewTimeoutError(id, fmt.Sprintf("attempt timed out after %s", timeout))
		}

		if stats != nil {
			stats.RecordFailure()
		}
		b.breakers.RecordFailure(id)
		b.collector.RecordRequest(&metrics.RequestMetrics{
			Provider:  id,
			ErrorType: errorType(err),
			Latency:   latency,
			Success:   false,
		})
		return nil, err
	}

	resp.ID = req.ID
	resp.Latency = latency
	if resp.Provider == "" {
		resp.Provider = id
	}

	if stats != nil {
		stats.RecordSuccess(latency, resp.QualityScore)
	}
	b.breakers.RecordSuccess(id)
	b.collector.RecordRequest(&metrics.RequestMetrics{
		Provider: id,
		Latency:  latency,
		Tokens:   resp.TokensUsed,
		CostUSD:  resp.CostUSD,
		Success:  true,
	})
	return resp, nil
}

// selectProvider assembles a candidate snapshot from the live stats and asks
// the routing engine for the best remaining provider.
func (b *Balancer) selectProvider(req *types.Request, tried map[string]bool) (*routing.Decision, error) {
	all := b.stats.InOrder()
	candidates := make([]routing.Candidate, 0, len(all))
	for _, s := range all {
		candidates = append(candidates, routing.Candidate{
			ID:                  s.ID(),
			CostPerToken:        s.CostPerToken(),
			LatencyMs:           float64(s.Latency().Milliseconds()),
			Quality:             s.Quality(),
			SuccessRate:         s.SuccessRate(),
			SecondsSinceSuccess: s.SecondsSinceSuccess(),
			Eligible:            b.breakers.Eligible(s.ID()),
		})
	}

	decision, err := b.engine.Select(req, candidates, tried)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("provider selected",
		"request", req.ID,
		"provider", decision.Provider,
		"score", decision.Score,
		"considered", decision.Considered,
	)
	return decision, nil
}

// estimateCost projects the request's cost at the most expensive registered
// provider. The budget check runs before routing, so the projection has to
// hold regardless of which provider ends up serving the call.
func (b *Balancer) estimateCost(req *types.Request) float64 {
	var max float64
	for _, s := range b.stats.InOrder() {
		if est := req.EstimatedCost(s.CostPerToken()); est > max {
			max = est
		}
	}
	return max
}

// providerList returns the registered providers in registration order.
func (b *Balancer) providerList() []provider.Provider {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]provider.Provider, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.providers[id])
	}
	return out
}

// Providers returns the identifiers of all registered providers in
// registration order.
func (b *Balancer) Providers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// BalancerSnapshot is a point-in-time view of the whole balancer, suitable
// for JSON export.
type BalancerSnapshot struct {
	Requests  metrics.Snapshot                   `json:"requests"`
	Providers []metrics.ProviderSnapshot         `json:"providers"`
	Breakers  map[string]resilience.BreakerStats `json:"breakers"`
	Cache     *cache.Stats                       `json:"cache,omitempty"`
	Budget    *budget.Status                     `json:"budget,omitempty"`
	Weights   routing.Weights                    `json:"weights"`
	InFlight  int                                `json:"in_flight"`
}

// Snapshot returns a detached copy of the balancer's current state.
func (b *Balancer) Snapshot() *BalancerSnapshot {
	snap := &BalancerSnapshot{
		Requests:  b.collector.Snapshot(),
		Providers: b.stats.Snapshots(),
		Breakers:  b.breakers.States(),
		Weights:   b.engine.Weights(),
		InFlight:  b.sem.InFlight(),
	}
	if b.cache != nil {
		stats := b.cache.Stats()
		snap.Cache = &stats
	}
	if b.budget.Enabled() {
		snap.Budget = b.budget.Status()
	}
	return snap
}

// Close stops background probing and releases resources. It is safe to call
// more than once.
func (b *Balancer) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.healthCancel != nil {
		b.healthCancel()
	}
	if b.cache != nil {
		b.cache.Flush()
	}
	b.logger.Info("balancer closed")
	return nil
}

// breakerGauge maps a circuit state onto the Prometheus gauge values.
func breakerGauge(s resilience.CircuitState) float64 {
	switch s {
	case resilience.StateOpen:
		return metrics.BreakerStateOpen
	case resilience.StateHalfOpen:
		return metrics.BreakerStateHalfOpen
	default:
		return metrics.BreakerStateClosed
	}
}

// errorType extracts the taxonomy type for metrics labels, with a stable
// fallback for foreign errors.
func errorType(err error) string {
	if t := llmerrors.TypeOf(err); t != "" {
		return t
	}
	return "unknown"
}
