// Package types defines the request and response model shared by the
// balancer, the routing engine, and provider implementations.
package types //nolint:revive // package name is intentional

import (
	"fmt"
	"strings"
	"time"

	"github.com/llmlb/llmlb/pkg/errors"
)

// DefaultMaxTokens is assumed for cost estimation and fingerprinting when a
// request leaves MaxTokens unset.
const DefaultMaxTokens = 1000

// Priority classifies how latency-sensitive a request is. Higher priorities
// tighten the latency target used when scoring providers.
type Priority int

// Request priorities in ascending order of urgency. The zero value is
// treated as PriorityNormal.
const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Effective returns p with the zero value mapped to PriorityNormal.
func (p Priority) Effective() Priority {
	if p == 0 {
		return PriorityNormal
	}
	return p
}

// ModelSize expresses a preference for the capability class of the serving
// model. Larger classes cost proportionally more per token.
type ModelSize string

// Model size preferences. The empty value means no preference.
const (
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// Valid reports whether s is a defined size class or empty.
func (s ModelSize) Valid() bool {
	switch s {
	case "", ModelSmall, ModelMedium, ModelLarge:
		return true
	default:
		return false
	}
}

// Multiplier returns the pricing multiplier for the size class. An
// unspecified preference prices between small and medium.
func (s ModelSize) Multiplier() float64 {
	switch s {
	case ModelSmall:
		return 1.0
	case ModelMedium:
		return 1.5
	case ModelLarge:
		return 2.0
	default:
		return 1.2
	}
}

// Request is a completion request as seen by the balancer. It is the unified
// input format for all providers.
type Request struct {
	ID              string    `json:"id"`
	Prompt          string    `json:"prompt"`
	MaxTokens       int       `json:"max_tokens,omitempty"`
	Temperature     float64   `json:"temperature,omitempty"`
	ModelPreference ModelSize `json:"model_preference,omitempty"`
	Priority        Priority  `json:"priority,omitempty"`

	// Timeout bounds a single provider attempt. Zero applies the balancer
	// default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// EffectiveMaxTokens returns MaxTokens, or DefaultMaxTokens when unset.
func (r *Request) EffectiveMaxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

// EstimatedCost projects the USD cost of serving r at the given per-token
// rate, scaled by the model size multiplier.
func (r *Request) EstimatedCost(costPerToken float64) float64 {
	return costPerToken * r.ModelPreference.Multiplier() * float64(r.EffectiveMaxTokens())
}

// Validate checks the request for structural problems and returns an
// invalid_request error describing the first one found. Layers below the
// balancer entry point assume a validated request.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.NewInvalidRequestError("prompt must not be empty")
	}
	if r.MaxTokens < 0 {
		return errors.NewInvalidRequestError("max_tokens must not be negative")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return errors.NewInvalidRequestError(fmt.Sprintf("temperature %.2f outside [0, 2]", r.Temperature))
	}
	if !r.ModelPreference.Valid() {
		return errors.NewInvalidRequestError(fmt.Sprintf("unknown model preference %q", r.ModelPreference))
	}
	if r.Priority != 0 && !r.Priority.Valid() {
		return errors.NewInvalidRequestError(fmt.Sprintf("unknown priority %d", r.Priority))
	}
	if r.Timeout < 0 {
		return errors.NewInvalidRequestError("timeout must not be negative")
	}
	return nil
}
