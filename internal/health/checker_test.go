package health

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/llmlb/llmlb/internal/metrics"
	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/providers/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChecker_RecordsProbeFailures(t *testing.T) {
	store := metrics.NewStore()
	stats := store.Register("m1", 0.00001)

	p := mock.New("m1", mock.WithLatency(0, 0))
	p.SetHealthy(false)

	c := NewChecker(
		Config{Enabled: true, Interval: 10 * time.Millisecond, Timeout: time.Second},
		func() []provider.Provider { return []provider.Provider{p} },
		store,
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	waitUntil(t, 2*time.Second, func() bool {
		return c.Failing("m1") && stats.ConsecutiveFailures() >= 1
	}, "probe failure was never recorded")

	if stats.SuccessRate() >= 0.99 {
		t.Errorf("SuccessRate() = %v, want decayed below initial", stats.SuccessRate())
	}
}

func TestChecker_RecoveryClearsFailing(t *testing.T) {
	store := metrics.NewStore()
	store.Register("m1", 0.00001)

	p := mock.New("m1", mock.WithLatency(0, 0))
	p.SetHealthy(false)

	c := NewChecker(
		Config{Enabled: true, Interval: 10 * time.Millisecond, Timeout: time.Second},
		func() []provider.Provider { return []provider.Provider{p} },
		store,
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	waitUntil(t, 2*time.Second, func() bool { return c.Failing("m1") },
		"provider never observed as failing")

	p.SetHealthy(true)

	waitUntil(t, 2*time.Second, func() bool { return !c.Failing("m1") },
		"provider never observed as recovered")
}

func TestChecker_DisabledDoesNotProbe(t *testing.T) {
	store := metrics.NewStore()
	p := mock.New("m1", mock.WithLatency(0, 0))

	c := NewChecker(
		Config{Enabled: false, Interval: 10 * time.Millisecond},
		func() []provider.Provider { return []provider.Provider{p} },
		store,
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if got := p.HealthChecks(); got != 0 {
		t.Errorf("HealthChecks() = %d, want 0 while disabled", got)
	}
}

func TestChecker_StartIsIdempotent(t *testing.T) {
	store := metrics.NewStore()
	store.Register("m1", 0.00001)
	p := mock.New("m1", mock.WithLatency(0, 0))

	c := NewChecker(
		// Long interval: only the initial sweep of each loop runs.
		Config{Enabled: true, Interval: time.Minute, Timeout: time.Second},
		func() []provider.Provider { return []provider.Provider{p} },
		store,
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Start(ctx)
	c.Start(ctx)

	waitUntil(t, 2*time.Second, func() bool { return p.HealthChecks() >= 1 },
		"initial probe never ran")
	time.Sleep(50 * time.Millisecond)

	if got := p.HealthChecks(); got != 1 {
		t.Errorf("HealthChecks() = %d, want 1 (single loop, single initial sweep)", got)
	}
}

func TestChecker_StopsOnContextCancel(t *testing.T) {
	store := metrics.NewStore()
	store.Register("m1", 0.00001)
	p := mock.New("m1", mock.WithLatency(0, 0))

	c := NewChecker(
		Config{Enabled: true, Interval: 5 * time.Millisecond, Timeout: time.Second},
		func() []provider.Provider { return []provider.Provider{p} },
		store,
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	waitUntil(t, 2*time.Second, func() bool { return p.HealthChecks() >= 2 },
		"probe loop never ticked")

	cancel()
	time.Sleep(20 * time.Millisecond)
	after := p.HealthChecks()
	time.Sleep(50 * time.Millisecond)

	if got := p.HealthChecks(); got != after {
		t.Errorf("probes continued after cancel: %d -> %d", after, got)
	}
}
