package routing

import "fmt"

// Weights control how much each scoring dimension contributes to the
// overall provider score. They are expected, not enforced, to sum to 1;
// Normalize rescales arbitrary non-negative weights.
type Weights struct {
	Cost        float64 `json:"cost" yaml:"cost"`
	Latency     float64 `json:"latency" yaml:"latency"`
	Quality     float64 `json:"quality" yaml:"quality"`
	Reliability float64 `json:"reliability" yaml:"reliability"`
}

// DefaultWeights returns the standard latency-leaning profile.
func DefaultWeights() Weights {
	return Weights{
		Cost:        0.3,
		Latency:     0.4,
		Quality:     0.2,
		Reliability: 0.1,
	}
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Cost + w.Latency + w.Quality + w.Reliability
}

// Validate rejects negative weights and the all-zero profile.
func (w Weights) Validate() error {
	if w.Cost < 0 || w.Latency < 0 || w.Quality < 0 || w.Reliability < 0 {
		return fmt.Errorf("routing weights must be non-negative, got %+v", w)
	}
	if w.Sum() == 0 {
		return fmt.Errorf("routing weights must not all be zero")
	}
	return nil
}

// Normalize rescales the weights to sum to 1. An all-zero profile falls
// back to the defaults.
func (w Weights) Normalize() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Cost:        w.Cost / sum,
		Latency:     w.Latency / sum,
		Quality:     w.Quality / sum,
		Reliability: w.Reliability / sum,
	}
}
