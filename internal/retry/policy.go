// Package retry holds the backoff policy applied between dispatch attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
)

// Defaults applied by Normalize for invalid policy fields.
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 100 * time.Millisecond
	DefaultMaxDelay       = 30 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.3
)

// rng feeds jitter. math/rand.Rand is not thread-safe, so it sits behind
// its own mutex.
var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

// Policy describes exponential backoff between attempts of one request.
type Policy struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Multiplier scales the delay per retry.
	Multiplier float64
	// JitterFraction adds up to this fraction of the capped delay as
	// uniform random slack, spreading out synchronized retries.
	JitterFraction float64
}

// DefaultPolicy returns the standard backoff policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		Multiplier:     DefaultMultiplier,
		JitterFraction: DefaultJitterFraction,
	}
}

// Normalize replaces invalid fields with defaults and returns the result.
// The zero Policy means unset and normalizes to DefaultPolicy. In any other
// policy a zero JitterFraction is kept: it means no jitter, not unset.
func (p Policy) Normalize() Policy {
	if p == (Policy{}) {
		return DefaultPolicy()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = DefaultMaxDelay
		if p.MaxDelay < p.BaseDelay {
			p.MaxDelay = p.BaseDelay
		}
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		p.JitterFraction = DefaultJitterFraction
	}
	return p
}

// Delay returns the wait before the given retry. attempt is the zero-based
// retry ordinal: Delay(0) precedes the second overall attempt. The
// exponential delay is capped at MaxDelay first; jitter is added on top.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	raw := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	capped := float64(p.MaxDelay)
	if raw < capped {
		capped = raw
	}

	if p.JitterFraction > 0 {
		capped += randFloat64() * p.JitterFraction * capped
	}
	return time.Duration(capped)
}

// Transient reports whether the error is worth another attempt. Budget and
// validation failures are permanent; rate limits, timeouts, open breakers
// and 5xx-class provider errors are transient.
func Transient(err error) bool {
	return llmerrors.IsRetryable(err)
}

// Sleep waits for d or until the context is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
