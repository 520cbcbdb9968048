// Package provider defines the public interface for LLM providers. Each
// backend implements this interface to serve completions and report the
// pricing the routing engine needs.
package provider

import (
	"context"

	"github.com/llmlb/llmlb/pkg/types"
)

// Provider defines the capability every LLM backend must implement.
type Provider interface {
	// ID returns the stable, unique provider identifier (e.g., "openai").
	ID() string

	// SupportedModels returns the list of models this provider can serve.
	SupportedModels() []string

	// BaseCostPerToken returns the USD price per token before any model
	// size multiplier is applied.
	BaseCostPerToken() float64

	// Complete serves a single completion request. Implementations must
	// honor ctx cancellation and return taxonomy errors from pkg/errors
	// where the failure class is known.
	Complete(ctx context.Context, req *types.Request) (*types.Response, error)

	// HealthCheck probes the backend. A nil return means the provider is
	// able to serve requests.
	HealthCheck(ctx context.Context) error
}

// Config carries the registration-time settings the balancer consumes for a
// provider. Fields the provider itself needs (keys, endpoints) live with the
// implementation, not here.
type Config struct {
	// ID overrides the provider's own identifier when non-empty. Useful
	// for registering the same implementation twice under distinct names.
	ID string `yaml:"id"`

	// CostPerToken seeds the pricing used for routing and budget checks.
	// Zero falls back to the provider's BaseCostPerToken.
	CostPerToken float64 `yaml:"cost_per_token"`

	// MaxRequestsPerMinute caps dispatches to this provider. Zero means
	// unlimited.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`

	// Metadata carries implementation-specific settings consumed by
	// NewFromConfig factories, such as base_url or latency_ms. The
	// balancer itself never reads it.
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Factory creates provider instances from configuration.
type Factory func(cfg Config) (Provider, error)
