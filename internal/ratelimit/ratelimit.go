// Package ratelimit enforces per-provider requests-per-minute ceilings on
// outbound dispatch. Hitting a ceiling is reported as a rate limit error so
// the retry path can fan out to another provider instead of queueing.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// ProviderLimiter holds one token-bucket limiter per provider. Providers
// without a configured ceiling are never limited.
type ProviderLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rpms     map[string]int
}

// New creates an empty limiter set.
func New() *ProviderLimiter {
	return &ProviderLimiter{
		limiters: make(map[string]*rate.Limiter),
		rpms:     make(map[string]int),
	}
}

// Set registers or updates the RPM ceiling for a provider. A non-positive
// rpm removes the ceiling.
func (pl *ProviderLimiter) Set(providerID string, rpm int) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if rpm <= 0 {
		delete(pl.limiters, providerID)
		delete(pl.rpms, providerID)
		return
	}

	limit := rate.Limit(float64(rpm) / 60.0)
	burst := burstFor(rpm)

	if limiter, ok := pl.limiters[providerID]; ok {
		limiter.SetLimit(limit)
		limiter.SetBurst(burst)
	} else {
		pl.limiters[providerID] = rate.NewLimiter(limit, burst)
	}
	pl.rpms[providerID] = rpm
}

// Allow reports whether a call to the provider may proceed now. It consumes
// a token when one is available.
func (pl *ProviderLimiter) Allow(providerID string) bool {
	pl.mu.RLock()
	limiter, ok := pl.limiters[providerID]
	pl.mu.RUnlock()

	if !ok {
		return true
	}
	return limiter.Allow()
}

// RPM returns the configured ceiling for a provider, 0 when unlimited.
func (pl *ProviderLimiter) RPM(providerID string) int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.rpms[providerID]
}

// burstFor sizes the bucket so short spikes pass while the minute-scale
// rate holds. Small ceilings still get a burst of one.
func burstFor(rpm int) int {
	burst := rpm / 6
	if burst < 1 {
		burst = 1
	}
	return burst
}
