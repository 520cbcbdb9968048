// Package routing implements weighted multi-dimensional provider selection.
// Each eligible provider is scored on cost, latency, quality, and
// reliability; the highest overall score wins, with ties resolved by
// registration order so repeated decisions stay stable.
package routing

import (
	"math"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/types"
)

const (
	// referenceCostUSD normalizes estimated request cost into a 0..1 score.
	referenceCostUSD = 0.01

	// Latency targets by priority tier, in milliseconds.
	highPriorityTargetMs = 100.0
	normalTargetMs       = 200.0

	// freshnessDecaySeconds discounts providers that have not succeeded
	// recently, with roughly five-minute decay.
	freshnessDecaySeconds = 300.0

	// tieEpsilon treats score differences below this as equal, keeping
	// the earlier-registered provider.
	tieEpsilon = 1e-9
)

// Candidate is a point-in-time view of one provider, assembled from atomic
// metric reads before selection. The engine itself never touches live state,
// so scoring runs lock-free.
type Candidate struct {
	ID                  string
	CostPerToken        float64
	LatencyMs           float64
	Quality             float64
	SuccessRate         float64
	SecondsSinceSuccess float64
	// Eligible is false while the provider's circuit breaker refuses calls.
	Eligible bool
}

// Subscores breaks an overall score into its weighted dimensions.
type Subscores struct {
	Cost        float64 `json:"cost"`
	Latency     float64 `json:"latency"`
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
}

// Decision reports the outcome of one selection for logging and tests.
type Decision struct {
	Provider   string    `json:"provider"`
	Score      float64   `json:"score"`
	Subscores  Subscores `json:"subscores"`
	Considered int       `json:"considered"`
}

// Engine scores candidates with a fixed weight profile.
type Engine struct {
	weights Weights
}

// NewEngine creates an engine with the given weights, normalized to sum
// to 1.
func NewEngine(w Weights) *Engine {
	return &Engine{weights: w.Normalize()}
}

// Weights returns the normalized weight profile in use.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Select picks the best eligible candidate for the request. Candidates
// arrive in registration order; IDs in exclude (providers already attempted
// for this request) and breaker-ineligible candidates are skipped. When
// nothing remains the error reason distinguishes exhausted retries from
// tripped breakers.
func (e *Engine) Select(req *types.Request, candidates []Candidate, exclude map[string]bool) (*Decision, error) {
	if len(candidates) == 0 {
		return nil, llmerrors.NewNoProvidersError("no providers registered")
	}

	var (
		best       *Decision
		excluded   int
		ineligible int
		considered int
	)

	for i := range candidates {
		c := &candidates[i]
		if exclude[c.ID] {
			excluded++
			continue
		}
		if !c.Eligible {
			ineligible++
			continue
		}

		considered++
		sub := e.score(req, c)
		overall := e.weights.Cost*sub.Cost +
			e.weights.Latency*sub.Latency +
			e.weights.Quality*sub.Quality +
			e.weights.Reliability*sub.Reliability

		if best == nil || overall > best.Score+tieEpsilon {
			best = &Decision{
				Provider:  c.ID,
				Score:     overall,
				Subscores: sub,
			}
		}
	}

	if best == nil {
		if excluded == len(candidates) {
			return nil, llmerrors.NewNoProvidersError("all providers already attempted")
		}
		return nil, llmerrors.NewNoProvidersError("all remaining provider circuits are open")
	}

	best.Considered = considered
	return best, nil
}

// score computes the four sub-scores for one candidate, each in [0, 1].
func (e *Engine) score(req *types.Request, c *Candidate) Subscores {
	return Subscores{
		Cost:        costScore(req, c.CostPerToken),
		Latency:     latencyScore(req.Priority, c.LatencyMs),
		Quality:     clamp01(c.Quality),
		Reliability: reliabilityScore(c.SuccessRate, c.SecondsSinceSuccess),
	}
}

// costScore maps the estimated request cost into 0..1, where a free call
// scores 1 and a call at the reference cost scores 0.5.
func costScore(req *types.Request, costPerToken float64) float64 {
	estimated := req.EstimatedCost(costPerToken)
	return 1.0 / (1.0 + estimated/referenceCostUSD)
}

// latencyScore rewards providers whose smoothed latency sits at or under
// the priority tier's target.
func latencyScore(priority types.Priority, latencyMs float64) float64 {
	target := normalTargetMs
	if priority.Effective() >= types.PriorityHigh {
		target = highPriorityTargetMs
	}
	if latencyMs < 0 {
		latencyMs = 0
	}
	score := target / (target + latencyMs)
	if score > 1 {
		score = 1
	}
	return score
}

// reliabilityScore is the success rate discounted by how long ago the
// provider last succeeded. A provider with a strong history that has gone
// quiet decays toward zero.
func reliabilityScore(successRate, secondsSinceSuccess float64) float64 {
	if secondsSinceSuccess < 0 {
		secondsSinceSuccess = 0
	}
	return clamp01(successRate) * math.Exp(-secondsSinceSuccess/freshnessDecaySeconds)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
