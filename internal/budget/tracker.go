// Package budget enforces a spend ceiling over a rolling hourly window.
//
// Accounting is check-then-charge: callers ask Check before dispatching
// and Charge after the real cost is known. A request whose actual cost
// lands only after completion is still recorded, so the window may run
// slightly past the ceiling; the next Check is the one that rejects.
package budget

import (
	"math"
	"time"
)

// Window shape for the hourly ceiling.
const (
	Window     = time.Hour
	BucketSize = time.Minute

	microPerUSD = 1_000_000
)

// Status reports the budget state at check time.
type Status struct {
	// Allowed is false when admitting the checked cost would push the
	// window past the ceiling.
	Allowed bool `json:"allowed"`
	// Reason explains a rejection; empty otherwise.
	Reason string `json:"reason,omitempty"`
	// LimitUSD is the configured ceiling; 0 means unlimited.
	LimitUSD float64 `json:"limit_usd"`
	// SpentUSD is the spend accumulated in the current window.
	SpentUSD float64 `json:"spent_usd"`
	// RemainingUSD is the headroom left before the ceiling.
	RemainingUSD float64 `json:"remaining_usd"`
	// Percentage is spend over limit, 0..1+ (may exceed 1 after
	// post-hoc charges).
	Percentage float64 `json:"percentage"`
	// Reset is the approximate time the oldest spend ages out.
	Reset time.Time `json:"reset"`
	// Window is the rolling window duration.
	Window time.Duration `json:"window"`
}

// Tracker enforces a single rolling hourly ceiling. Spend is held in
// integer micro-dollars so repeated small charges do not drift.
type Tracker struct {
	limitMicro int64
	window     *RollingWindow
}

// NewTracker creates a tracker with the given hourly ceiling in USD.
// A non-positive limit disables enforcement: Check always allows and
// Charge still accumulates for reporting.
func NewTracker(limitUSD float64) *Tracker {
	var limitMicro int64
	if limitUSD > 0 {
		limitMicro = toMicro(limitUSD)
	}
	return &Tracker{
		limitMicro: limitMicro,
		window:     NewRollingWindow(Window, BucketSize),
	}
}

// Enabled reports whether a ceiling is configured.
func (t *Tracker) Enabled() bool {
	return t.limitMicro > 0
}

// Check reports whether spending estimatedUSD now would stay within the
// ceiling. It does not reserve: the caller charges the actual cost after
// the call completes.
func (t *Tracker) Check(estimatedUSD float64) *Status {
	spent := t.window.Sum()

	if t.limitMicro <= 0 {
		return &Status{
			Allowed:  true,
			SpentUSD: fromMicro(spent),
			Window:   Window,
		}
	}

	status := t.statusAt(spent)
	if spent+toMicro(estimatedUSD) > t.limitMicro {
		status.Allowed = false
		status.Reason = "hourly budget limit exceeded"
	}
	return status
}

// Charge records actual spend. Charges are always accepted, even when
// they push the window past the ceiling, so completed work is never lost
// from accounting.
func (t *Tracker) Charge(actualUSD float64) {
	if actualUSD <= 0 {
		return
	}
	t.window.Add(toMicro(actualUSD))
}

// Status returns the current window state without checking a cost.
func (t *Tracker) Status() *Status {
	spent := t.window.Sum()
	if t.limitMicro <= 0 {
		return &Status{
			Allowed:  true,
			SpentUSD: fromMicro(spent),
			Window:   Window,
		}
	}
	return t.statusAt(spent)
}

// SpentUSD returns the spend accumulated in the current window.
func (t *Tracker) SpentUSD() float64 {
	return fromMicro(t.window.Sum())
}

// RemainingUSD returns the headroom left before the ceiling, or +Inf
// when no ceiling is configured.
func (t *Tracker) RemainingUSD() float64 {
	if t.limitMicro <= 0 {
		return math.Inf(1)
	}
	remaining := t.limitMicro - t.window.Sum()
	if remaining < 0 {
		remaining = 0
	}
	return fromMicro(remaining)
}

// LimitUSD returns the configured ceiling, 0 when disabled.
func (t *Tracker) LimitUSD() float64 {
	return fromMicro(t.limitMicro)
}

// Reset clears the window. Intended for tests.
func (t *Tracker) Reset() {
	t.window.Reset()
}

// statusAt builds an allowed Status for the given spend. Callers flip
// Allowed when the checked cost does not fit.
func (t *Tracker) statusAt(spentMicro int64) *Status {
	remaining := t.limitMicro - spentMicro
	if remaining < 0 {
		remaining = 0
	}

	var reset time.Time
	if oldest := t.window.OldestStart(); !oldest.IsZero() {
		reset = oldest.Add(Window)
	} else {
		reset = time.Now()
	}

	return &Status{
		Allowed:      true,
		LimitUSD:     fromMicro(t.limitMicro),
		SpentUSD:     fromMicro(spentMicro),
		RemainingUSD: fromMicro(remaining),
		Percentage:   float64(spentMicro) / float64(t.limitMicro),
		Reset:        reset,
		Window:       Window,
	}
}

func toMicro(usd float64) int64 {
	return int64(math.Round(usd * microPerUSD))
}

func fromMicro(micro int64) float64 {
	return float64(micro) / microPerUSD
}
