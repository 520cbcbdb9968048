package llmlb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/types"
	"github.com/llmlb/llmlb/providers/mock"
)

func TestBudgetRejectsBeforeDispatch(t *testing.T) {
	prov := mock.New("pricey", mock.WithLatency(0, 0), mock.WithCostPerToken(0.001))
	b := newTestBalancer(t, WithProviders(prov), WithBudget(0.5))

	// Estimated: 0.001 * 1.2 * 1000 = $1.20 against a $0.50 ceiling.
	_, err := b.Complete(context.Background(), &types.Request{Prompt: "expensive"})
	require.Error(t, err)

	be, ok := llmerrors.AsBalancerError(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeBudgetExceeded, be.Type)

	assert.Equal(t, int64(0), prov.Calls(), "no provider call may happen after a budget rejection")
	assert.Equal(t, uint64(1), b.Snapshot().Requests.BudgetRejections)
}

func TestBudgetChargesActualCost(t *testing.T) {
	prov := mock.New("m1", mock.WithLatency(0, 0), mock.WithSeed(3))
	b := newTestBalancer(t, WithProviders(prov), WithBudget(100), WithCacheDisabled())

	resp, err := b.Complete(context.Background(), &types.Request{Prompt: "hi", MaxTokens: 100})
	require.NoError(t, err)

	snap := b.Snapshot()
	require.NotNil(t, snap.Budget)
	assert.InDelta(t, resp.CostUSD, snap.Budget.SpentUSD, 1e-6)
	assert.InDelta(t, 100-resp.CostUSD, snap.Budget.RemainingUSD, 1e-6)
}
