package llmlb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmlb/llmlb/pkg/errors"
	"github.com/llmlb/llmlb/pkg/types"
	"github.com/llmlb/llmlb/providers/mock"
)

func TestRetryFansOutAcrossProviders(t *testing.T) {
	flaky := mock.New("flaky", mock.WithLatency(0, 0), mock.WithFailureRate(1.0))
	steady := mock.New("steady", mock.WithLatency(0, 0))
	b := newTestBalancer(t,
		WithProviders(flaky, steady),
		WithRetryPolicy(fastRetry(3)),
	)

	resp, err := b.Complete(context.Background(), &types.Request{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "steady", resp.Provider)
	assert.Equal(t, int64(1), flaky.Calls())
	assert.Equal(t, int64(1), steady.Calls())

	snap := b.Snapshot()
	assert.Equal(t, uint64(1), snap.Requests.Retries)
	assert.Equal(t, uint64(1), snap.Requests.Failed)
	assert.Equal(t, uint64(1), snap.Requests.Succeeded)
	assert.Equal(t, 1, snap.Breakers["flaky"].Failures)
}

func TestRetriesNeverReuseAProvider(t *testing.T) {
	flaky := mock.New("flaky", mock.WithLatency(0, 0), mock.WithFailureRate(1.0))
	b := newTestBalancer(t,
		WithProviders(flaky),
		WithRetryPolicy(fastRetry(3)),
	)

	_, err := b.Complete(context.Background(), &types.Request{Prompt: "hi"})
	require.Error(t, err)

	be, ok := llmerrors.AsBalancerError(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeMaxRetries, be.Type)

	// The sole provider is excluded after its first failure; the budget of
	// three attempts must not be spent hammering it.
	assert.Equal(t, int64(1), flaky.Calls())

	var inner *llmerrors.BalancerError
	require.True(t, errors.As(be.Unwrap(), &inner))
	assert.Equal(t, llmerrors.TypeProviderError, inner.Type)
}

// authFailProvider always fails with a non-retryable 401.
type authFailProvider struct {
	calls int64
}

func (p *authFailProvider) ID() string                { return "authfail" }
func (p *authFailProvider) SupportedModels() []string { return []string{"mock-small"} }
func (p *authFailProvider) BaseCostPerToken() float64 { return 0.00001 }

func (p *authFailProvider) Complete(ctx context.Context, req *types.Request) (*types.Response, error) {
	atomic.AddInt64(&p.calls, 1)
	return nil, llmerrors.NewProviderError("authfail", 401, "invalid api key")
}

func (p *authFailProvider) HealthCheck(ctx context.Context) error { return nil }

func TestPermanentErrorStopsRetries(t *testing.T) {
	bad := &authFailProvider{}
	spare := mock.New("spare", mock.WithLatency(0, 0))
	b := newTestBalancer(t,
		WithProvider(bad, ProviderConfig{CostPerToken: 0.000001}),
		WithProviders(spare),
		WithRetryPolicy(fastRetry(3)),
	)

	// The 401 is permanent: no retry may run even with a healthy spare
	// provider and attempts left.
	_, err := b.Complete(context.Background(), &types.Request{Prompt: "hi"})
	require.Error(t, err)

	be, ok := llmerrors.AsBalancerError(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeProviderError, be.Type)
	assert.Equal(t, 401, be.StatusCode)

	assert.Equal(t, int64(1), atomic.LoadInt64(&bad.calls))
	assert.Equal(t, int64(0), spare.Calls())
	assert.Equal(t, uint64(0), b.Snapshot().Requests.Retries)
}

func TestBreakerOpensAndShortCircuits(t *testing.T) {
	failing := mock.New("failing", mock.WithLatency(0, 0), mock.WithFailureRate(1.0))
	b := newTestBalancer(t,
		WithProviders(failing),
		WithRetryPolicy(fastRetry(1)),
		WithBreakerConfig(BreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			OpenTimeout:      time.Minute,
			HalfOpenMaxCalls: 1,
		}),
	)

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), &types.Request{Prompt: "hi"})
		require.Error(t, err)
	}
	require.Equal(t, int64(2), failing.Calls())

	// Circuit is open now: selection fails without any provider call.
	_, err := b.Complete(context.Background(), &types.Request{Prompt: "hi"})
	require.Error(t, err)
	be, ok := llmerrors.AsBalancerError(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeNoProviders, be.Type)
	assert.Contains(t, be.Message, "circuits are open")
	assert.Equal(t, int64(2), failing.Calls())

	assert.Equal(t, "open", b.Snapshot().Breakers["failing"].StateLabel)
}

func TestBreakerRecoversAfterOpenTimeout(t *testing.T) {
	prov := mock.New("recovering", mock.WithLatency(0, 0))
	prov.SetHealthy(false)
	b := newTestBalancer(t,
		WithProviders(prov),
		WithRetryPolicy(fastRetry(1)),
		WithBreakerConfig(BreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			OpenTimeout:      20 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		}),
	)

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), &types.Request{Prompt: "hi"})
		require.Error(t, err)
	}
	require.Equal(t, "open", b.Snapshot().Breakers["recovering"].StateLabel)

	prov.SetHealthy(true)
	time.Sleep(40 * time.Millisecond)

	resp, err := b.Complete(context.Background(), &types.Request{Prompt: "recovered"})
	require.NoError(t, err)
	assert.Equal(t, "recovering", resp.Provider)
	assert.Equal(t, "closed", b.Snapshot().Breakers["recovering"].StateLabel)
}
