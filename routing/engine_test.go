package routing

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/types"
)

// healthyCandidate returns a candidate with neutral metrics so tests can
// skew a single dimension at a time.
func healthyCandidate(id string) Candidate {
	return Candidate{
		ID:                  id,
		CostPerToken:        0.00001,
		LatencyMs:           100,
		Quality:             0.85,
		SuccessRate:         0.99,
		SecondsSinceSuccess: 0,
		Eligible:            true,
	}
}

func TestWeights_Default(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
	assert.Equal(t, 0.4, w.Latency, "latency carries the largest default weight")
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{Cost: -0.1, Latency: 0.5}.Validate())
	assert.Error(t, Weights{}.Validate())
}

func TestWeights_Normalize(t *testing.T) {
	w := Weights{Cost: 2, Latency: 2, Quality: 2, Reliability: 2}.Normalize()
	assert.InDelta(t, 0.25, w.Cost, 1e-9)
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)

	// All-zero falls back to the default profile.
	assert.Equal(t, DefaultWeights(), Weights{}.Normalize())
}

func TestCostScore(t *testing.T) {
	req := &types.Request{Prompt: "p"} // default max tokens, no preference

	// Free provider scores 1.
	assert.InDelta(t, 1.0, costScore(req, 0), 1e-9)

	// estimatedCost = costPerToken * 1.2 * 1000; pick the per-token price
	// that lands exactly on the reference cost, scoring 0.5.
	perToken := referenceCostUSD / (1.2 * float64(types.DefaultMaxTokens))
	assert.InDelta(t, 0.5, costScore(req, perToken), 1e-9)

	// Model size preference raises the estimate and lowers the score.
	large := &types.Request{Prompt: "p", ModelPreference: types.ModelLarge}
	assert.Less(t, costScore(large, perToken), 0.5)
}

func TestLatencyScore(t *testing.T) {
	// At-target latency scores 0.5 for both tiers.
	assert.InDelta(t, 0.5, latencyScore(types.PriorityNormal, 200), 1e-9)
	assert.InDelta(t, 0.5, latencyScore(types.PriorityHigh, 100), 1e-9)

	// High priority holds the tighter target: the same 100ms provider
	// looks worse to a high-priority request than 200/(200+100) would.
	assert.InDelta(t, 2.0/3.0, latencyScore(types.PriorityNormal, 100), 1e-9)

	// Critical uses the high-priority target too.
	assert.InDelta(t, 0.5, latencyScore(types.PriorityCritical, 100), 1e-9)

	// Instant responses score 1.
	assert.InDelta(t, 1.0, latencyScore(types.PriorityNormal, 0), 1e-9)
}

func TestReliabilityScore(t *testing.T) {
	assert.InDelta(t, 1.0, reliabilityScore(1.0, 0), 1e-9)

	// One decay constant elapsed discounts to 1/e.
	assert.InDelta(t, math.Exp(-1), reliabilityScore(1.0, 300), 1e-9)

	// The discount scales the success rate.
	assert.InDelta(t, 0.5*math.Exp(-1), reliabilityScore(0.5, 300), 1e-9)

	// Out-of-range rates are clamped.
	assert.InDelta(t, 1.0, reliabilityScore(1.5, 0), 1e-9)
}

func TestEngine_SelectPicksBestScore(t *testing.T) {
	e := NewEngine(DefaultWeights())
	req := &types.Request{Prompt: "hello"}

	slow := healthyCandidate("slow")
	slow.LatencyMs = 900

	fast := healthyCandidate("fast")
	fast.LatencyMs = 40

	decision, err := e.Select(req, []Candidate{slow, fast}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", decision.Provider)
	assert.Equal(t, 2, decision.Considered)
	assert.Greater(t, decision.Score, 0.0)
	assert.Greater(t, decision.Subscores.Latency, 0.5)
}

func TestEngine_SelectHonorsExclusions(t *testing.T) {
	e := NewEngine(DefaultWeights())
	req := &types.Request{Prompt: "hello"}

	best := healthyCandidate("best")
	backup := healthyCandidate("backup")
	backup.LatencyMs = 500

	decision, err := e.Select(req, []Candidate{best, backup}, map[string]bool{"best": true})
	require.NoError(t, err)
	assert.Equal(t, "backup", decision.Provider)
	assert.Equal(t, 1, decision.Considered)
}

func TestEngine_SelectSkipsIneligible(t *testing.T) {
	e := NewEngine(DefaultWeights())
	req := &types.Request{Prompt: "hello"}

	tripped := healthyCandidate("tripped")
	tripped.Eligible = false
	healthy := healthyCandidate("healthy")
	healthy.LatencyMs = 800 // worse score, but the only one admitted

	decision, err := e.Select(req, []Candidate{tripped, healthy}, nil)
	require.NoError(t, err)
	assert.Equal(t, "healthy", decision.Provider)
}

func TestEngine_SelectEmptyReasons(t *testing.T) {
	e := NewEngine(DefaultWeights())
	req := &types.Request{Prompt: "hello"}

	t.Run("no providers registered", func(t *testing.T) {
		_, err := e.Select(req, nil, nil)
		be, ok := llmerrors.AsBalancerError(err)
		require.True(t, ok)
		assert.Equal(t, llmerrors.TypeNoProviders, be.Type)
		assert.Contains(t, be.Message, "registered")
	})

	t.Run("all attempted", func(t *testing.T) {
		_, err := e.Select(req, []Candidate{healthyCandidate("a")}, map[string]bool{"a": true})
		be, ok := llmerrors.AsBalancerError(err)
		require.True(t, ok)
		assert.Contains(t, be.Message, "attempted")
	})

	t.Run("all circuits open", func(t *testing.T) {
		open := healthyCandidate("a")
		open.Eligible = false
		_, err := e.Select(req, []Candidate{open}, nil)
		be, ok := llmerrors.AsBalancerError(err)
		require.True(t, ok)
		assert.Contains(t, be.Message, "open")
	})

	t.Run("mixed exclusion and open circuits", func(t *testing.T) {
		open := healthyCandidate("b")
		open.Eligible = false
		_, err := e.Select(req, []Candidate{healthyCandidate("a"), open}, map[string]bool{"a": true})
		be, ok := llmerrors.AsBalancerError(err)
		require.True(t, ok)
		assert.Contains(t, be.Message, "open")
	})
}

func TestEngine_SelectTieKeepsRegistrationOrder(t *testing.T) {
	e := NewEngine(DefaultWeights())
	req := &types.Request{Prompt: "hello"}

	first := healthyCandidate("first")
	second := healthyCandidate("second") // identical metrics

	decision, err := e.Select(req, []Candidate{first, second}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", decision.Provider)

	// Repeated selection stays stable, no flapping between equals.
	for i := 0; i < 10; i++ {
		d, err := e.Select(req, []Candidate{first, second}, nil)
		require.NoError(t, err)
		assert.Equal(t, "first", d.Provider)
	}
}

func TestEngine_SelectPriorityShiftsChoice(t *testing.T) {
	// cheapSlow wins on cost, fastPricey wins on latency. Raising the
	// priority tightens the latency target enough to flip the decision.
	e := NewEngine(Weights{Cost: 0.5, Latency: 0.5})

	cheapSlow := healthyCandidate("cheap-slow")
	cheapSlow.CostPerToken = 0
	cheapSlow.LatencyMs = 250

	fastPricey := healthyCandidate("fast-pricey")
	fastPricey.CostPerToken = referenceCostUSD / (1.2 * float64(types.DefaultMaxTokens))
	fastPricey.LatencyMs = 20

	normal := &types.Request{Prompt: "p", Priority: types.PriorityNormal}
	high := &types.Request{Prompt: "p", Priority: types.PriorityHigh}

	normalPick, err := e.Select(normal, []Candidate{cheapSlow, fastPricey}, nil)
	require.NoError(t, err)
	highPick, err := e.Select(high, []Candidate{cheapSlow, fastPricey}, nil)
	require.NoError(t, err)

	assert.Equal(t, "cheap-slow", normalPick.Provider)
	assert.Equal(t, "fast-pricey", highPick.Provider)
}

func TestEngine_WeightsNormalizedAtConstruction(t *testing.T) {
	e := NewEngine(Weights{Cost: 3, Latency: 4, Quality: 2, Reliability: 1})
	w := e.Weights()
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
	assert.InDelta(t, 0.4, w.Latency, 1e-9)
}

func BenchmarkEngine_Select(b *testing.B) {
	e := NewEngine(DefaultWeights())
	req := &types.Request{Prompt: "benchmark", Priority: types.PriorityNormal}

	candidates := make([]Candidate, 8)
	for i := range candidates {
		c := healthyCandidate(fmt.Sprintf("p%d", i))
		c.LatencyMs = float64(40 + i*25)
		c.CostPerToken = 0.00001 * float64(i+1)
		candidates[i] = c
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Select(req, candidates, nil); err != nil {
			b.Fatal(err)
		}
	}
}
