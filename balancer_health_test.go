package llmlb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmlb/llmlb/providers/mock"
)

func TestHealthChecksProbeInBackground(t *testing.T) {
	prov := mock.New("probed", mock.WithLatency(0, 0))
	prov.SetHealthy(false)
	b := newTestBalancer(t,
		WithProviders(prov),
		WithHealthChecks(20*time.Millisecond),
	)

	deadline := time.Now().Add(2 * time.Second)
	for prov.HealthChecks() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, prov.HealthChecks(), int64(2), "probes should run on the interval")

	snap := b.Snapshot()
	require.Len(t, snap.Providers, 1)
	assert.Greater(t, snap.Providers[0].ConsecutiveFailures, uint32(0))

	require.NoError(t, b.Close())
	settled := prov.HealthChecks()
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, prov.HealthChecks(), settled+1, "probing should stop after Close")
}
