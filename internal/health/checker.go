// Package health provides proactive background probing of providers.
package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llmlb/llmlb/internal/metrics"
	"github.com/llmlb/llmlb/pkg/provider"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Config controls the health checker behavior.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// Checker periodically probes every registered provider. A failed probe is
// recorded as a failure in the provider's stats, so reliability scoring
// reacts to dead backends between real requests. Probes never touch circuit
// breaker admission or the budget.
type Checker struct {
	cfg     Config
	list    func() []provider.Provider
	stats   *metrics.Store
	logger  *slog.Logger
	started atomic.Bool

	mu      sync.Mutex
	failing map[string]bool
}

// NewChecker creates a health checker. list supplies the current provider
// set on each tick, so providers registered after startup are probed too.
func NewChecker(cfg Config, list func() []provider.Provider, stats *metrics.Store, logger *slog.Logger) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		cfg:     cfg,
		list:    list,
		stats:   stats,
		logger:  logger,
		failing: make(map[string]bool),
	}
}

// Start begins the probe loop until the context is canceled. Repeated calls
// are no-ops.
func (c *Checker) Start(ctx context.Context) {
	if c == nil || !c.cfg.Enabled || c.list == nil {
		return
	}
	if !c.started.CompareAndSwap(false, true) {
		return
	}

	go c.run(ctx)
}

func (c *Checker) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			c.runOnce(ctx)
		case <-ctx.Done():
			c.logger.Debug("health checker stopped")
			return
		}
	}
}

func (c *Checker) runOnce(ctx context.Context) {
	for _, prov := range c.list() {
		if ctx.Err() != nil {
			return
		}
		if err := c.probe(ctx, prov); err != nil {
			c.handleFailure(prov.ID(), err)
			continue
		}
		c.handleSuccess(prov.ID())
	}
}

func (c *Checker) probe(ctx context.Context, prov provider.Provider) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return prov.HealthCheck(probeCtx)
}

func (c *Checker) handleFailure(providerID string, err error) {
	if stats, ok := c.stats.Get(providerID); ok {
		stats.RecordFailure()
	}

	c.mu.Lock()
	c.failing[providerID] = true
	c.mu.Unlock()

	c.logger.Warn("health probe failed",
		"provider", providerID,
		"error", err,
	)
}

func (c *Checker) handleSuccess(providerID string) {
	c.mu.Lock()
	wasFailing := c.failing[providerID]
	delete(c.failing, providerID)
	c.mu.Unlock()

	if wasFailing {
		c.logger.Info("provider recovered", "provider", providerID)
	}
}

// Failing reports whether the last probe of the provider failed.
func (c *Checker) Failing(providerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failing[providerID]
}
