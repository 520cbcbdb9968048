// Package llmlb load-balances completion requests across multiple LLM
// providers. Every request is scored against each provider's live cost,
// latency, quality, and reliability metrics; failures are contained by
// per-provider circuit breakers and retried across the remaining backends.
//
// Basic usage:
//
//	lb, err := llmlb.New(
//	    llmlb.WithProviders(openaiProv, anthropicProv),
//	    llmlb.WithBudget(100),
//	    llmlb.WithMaxConcurrent(500, llmlb.OverflowReject),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lb.Close()
//
//	resp, err := lb.Complete(ctx, &llmlb.Request{
//	    Prompt:    "Summarize the attached report.",
//	    MaxTokens: 500,
//	    Priority:  llmlb.PriorityHigh,
//	})
package llmlb

import (
	"github.com/llmlb/llmlb/internal/budget"
	"github.com/llmlb/llmlb/internal/cache"
	"github.com/llmlb/llmlb/internal/resilience"
	"github.com/llmlb/llmlb/internal/retry"
	"github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/pkg/types"
	"github.com/llmlb/llmlb/routing"
)

// Version is the current version of llmlb.
const Version = "1.0.0"

// Re-export core request/response types for convenience.
// Callers can use llmlb.Request instead of types.Request.
type (
	// Request is a completion request.
	Request = types.Request

	// Response is a completed request.
	Response = types.Response

	// Priority classifies how latency-sensitive a request is.
	Priority = types.Priority

	// ModelSize expresses a preference for the serving model's
	// capability class.
	ModelSize = types.ModelSize
)

// Re-export provider types.
type (
	// Provider is the capability every LLM backend implements.
	Provider = provider.Provider

	// ProviderConfig carries registration-time settings for a provider.
	ProviderConfig = provider.Config

	// ProviderFactory creates provider instances from configuration.
	ProviderFactory = provider.Factory
)

// Re-export tuning types.
type (
	// Weights is the routing weight profile.
	Weights = routing.Weights

	// RetryPolicy describes the backoff between dispatch attempts.
	RetryPolicy = retry.Policy

	// BreakerConfig holds the circuit breaker thresholds.
	BreakerConfig = resilience.CircuitBreakerConfig

	// CircuitState is a circuit breaker state.
	CircuitState = resilience.CircuitState

	// BreakerStats is a point-in-time view of one breaker.
	BreakerStats = resilience.BreakerStats

	// CacheStats summarizes response cache effectiveness.
	CacheStats = cache.Stats

	// BudgetStatus reports the budget window state.
	BudgetStatus = budget.Status
)

// Re-export error types.
type (
	// BalancerError is the standardized error for balancer operations.
	BalancerError = errors.BalancerError
)

// Re-export priority and model size constants.
const (
	PriorityLow      = types.PriorityLow
	PriorityNormal   = types.PriorityNormal
	PriorityHigh     = types.PriorityHigh
	PriorityCritical = types.PriorityCritical

	ModelSmall  = types.ModelSmall
	ModelMedium = types.ModelMedium
	ModelLarge  = types.ModelLarge
)

// Re-export circuit states.
const (
	StateClosed   = resilience.StateClosed
	StateOpen     = resilience.StateOpen
	StateHalfOpen = resilience.StateHalfOpen
)

// Re-export error type constants.
const (
	TypeNoProviders    = errors.TypeNoProviders
	TypeCircuitOpen    = errors.TypeCircuitOpen
	TypeRateLimit      = errors.TypeRateLimit
	TypeTimeout        = errors.TypeTimeout
	TypeProviderError  = errors.TypeProviderError
	TypeMaxRetries     = errors.TypeMaxRetries
	TypeBudgetExceeded = errors.TypeBudgetExceeded
	TypeInvalidRequest = errors.TypeInvalidRequest
	TypeOverloaded     = errors.TypeOverloaded
)

// Re-export the error helpers and the factories provider implementations
// return taxonomy errors through.
var (
	AsBalancerError = errors.AsBalancerError
	IsRetryable     = errors.IsRetryable

	NewProviderError  = errors.NewProviderError
	NewRateLimitError = errors.NewRateLimitError
	NewTimeoutError   = errors.NewTimeoutError
)

// DefaultWeights returns the standard routing weight profile.
var DefaultWeights = routing.DefaultWeights
