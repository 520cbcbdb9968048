package resilience

import (
	"sync"
)

// Registry holds one circuit breaker per provider. Breakers are created
// lazily on first use, all with the same configuration.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	onChange func(name string, from, to CircuitState)
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(cfg CircuitBreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   cfg.Normalize(),
	}
}

// OnStateChange installs a callback applied to every breaker, existing and
// future. Must be called before traffic starts.
func (r *Registry) OnStateChange(fn func(name string, from, to CircuitState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
	for _, cb := range r.breakers {
		cb.OnStateChange(fn)
	}
}

// Get returns or creates the breaker for the given provider.
func (r *Registry) Get(provider string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[provider]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok = r.breakers[provider]; ok {
		return cb
	}

	cb = NewCircuitBreaker(provider, r.config)
	if r.onChange != nil {
		cb.OnStateChange(r.onChange)
	}
	r.breakers[provider] = cb
	return cb
}

// Eligible reports whether the provider's breaker would admit a call.
func (r *Registry) Eligible(provider string) bool {
	return r.Get(provider).Eligible()
}

// Allow consumes an admission from the provider's breaker.
func (r *Registry) Allow(provider string) bool {
	return r.Get(provider).Allow()
}

// RecordSuccess records a successful call against the provider's breaker.
func (r *Registry) RecordSuccess(provider string) {
	r.Get(provider).RecordSuccess()
}

// RecordFailure records a failed call against the provider's breaker.
func (r *Registry) RecordFailure(provider string) {
	r.Get(provider).RecordFailure()
}

// States returns the current stats of every breaker, keyed by provider.
func (r *Registry) States() map[string]BreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BreakerStats, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.Stats()
	}
	return out
}
