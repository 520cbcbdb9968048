// Package errors defines the unified error taxonomy for balancer operations.
// Provider failures, routing dead ends, and admission rejections are all
// mapped to these standard error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// BalancerError represents a standardized error from the balancer or one of
// its providers. It carries everything needed for error handling, logging,
// and retry classification.
type BalancerError struct {
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider,omitempty"`
	Retryable  bool   `json:"-"`

	wrapped error
}

// Error implements the error interface.
func (e *BalancerError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s)", e.Type, e.Message, e.Provider)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap exposes the underlying error, if any.
func (e *BalancerError) Unwrap() error {
	return e.wrapped
}

// Common error types as constants for consistency.
const (
	TypeNoProviders    = "no_providers_available"
	TypeCircuitOpen    = "circuit_open"
	TypeRateLimit      = "rate_limited"
	TypeTimeout        = "timeout"
	TypeProviderError  = "provider_error"
	TypeMaxRetries     = "max_retries_exceeded"
	TypeBudgetExceeded = "budget_exceeded"
	TypeInvalidRequest = "invalid_request"
	TypeOverloaded     = "too_many_requests"
)

// NewNoProvidersError creates an error for an empty eligible-provider set.
// The reason distinguishes "all excluded by prior attempts" from "all
// circuits open" in logs.
func NewNoProvidersError(reason string) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    reason,
		Type:       TypeNoProviders,
		Retryable:  false,
	}
}

// NewCircuitOpenError creates an error for a provider whose circuit breaker
// refused the call. Retryable: another provider may still serve the request.
func NewCircuitOpenError(provider string) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    "circuit breaker is open",
		Type:       TypeCircuitOpen,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, message string) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewTimeoutError creates a timeout error (408).
func NewTimeoutError(provider, message string) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Type:       TypeTimeout,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewProviderError creates an error for a provider-reported failure. The
// error is retryable for 5xx responses, 429, and transport failures
// (status 0); other 4xx responses are treated as permanent.
func NewProviderError(provider string, statusCode int, message string) *BalancerError {
	return &BalancerError{
		StatusCode: statusCode,
		Message:    message,
		Type:       TypeProviderError,
		Provider:   provider,
		Retryable:  statusCode == 0 || statusCode == http.StatusTooManyRequests || statusCode >= 500,
	}
}

// NewMaxRetriesError creates the terminal error returned once every retry
// attempt has been spent. It wraps the last underlying failure.
func NewMaxRetriesError(attempts int, lastErr error) *BalancerError {
	msg := fmt.Sprintf("gave up after %d attempts", attempts)
	if lastErr != nil {
		msg = fmt.Sprintf("gave up after %d attempts: %v", attempts, lastErr)
	}
	return &BalancerError{
		StatusCode: http.StatusBadGateway,
		Message:    msg,
		Type:       TypeMaxRetries,
		Retryable:  false,
		wrapped:    lastErr,
	}
}

// NewBudgetExceededError creates an error for a request rejected by the cost
// budget. Not retryable: retrying cannot make the request cheaper.
func NewBudgetExceededError(estimatedUSD, remainingUSD float64) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusPaymentRequired,
		Message:    fmt.Sprintf("estimated cost $%.4f exceeds remaining hourly budget $%.4f", estimatedUSD, remainingUSD),
		Type:       TypeBudgetExceeded,
		Retryable:  false,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(message string) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Retryable:  false,
	}
}

// NewOverloadedError creates an admission rejection returned when the
// balancer is already running its configured maximum of concurrent requests.
func NewOverloadedError(limit int) *BalancerError {
	return &BalancerError{
		StatusCode: http.StatusTooManyRequests,
		Message:    fmt.Sprintf("balancer at capacity (%d concurrent requests)", limit),
		Type:       TypeOverloaded,
		Retryable:  false,
	}
}

// AsBalancerError extracts a *BalancerError from err's chain.
func AsBalancerError(err error) (*BalancerError, bool) {
	var be *BalancerError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsRetryable reports whether err may succeed on a different provider or a
// later attempt. Unrecognized errors are treated as retryable transport
// failures.
func IsRetryable(err error) bool {
	if be, ok := AsBalancerError(err); ok {
		return be.Retryable
	}
	return err != nil
}

// TypeOf returns the taxonomy type of err, or empty for foreign errors.
func TypeOf(err error) string {
	if be, ok := AsBalancerError(err); ok {
		return be.Type
	}
	return ""
}
