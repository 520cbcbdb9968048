package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/llmlb/llmlb"
)

// defaultPrompts seeds the traffic pool when the config names none.
var defaultPrompts = []string{
	"Summarize the attached quarterly report for the executive team",
	"Draft a polite follow-up email to a customer about a delayed order",
	"Explain the difference between optimistic and pessimistic locking",
	"Translate the product announcement into Spanish",
	"List five risks of migrating the billing service to a new region",
}

// Driver fires synthetic completion requests at the balancer on a fixed
// tick. Each shot runs in its own goroutine so slow providers do not stall
// the schedule.
type Driver struct {
	lb     *llmlb.Balancer
	cfg    TrafficSpec
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	sent      atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	cached    atomic.Uint64
	cancelled atomic.Uint64
}

// NewDriver creates a traffic driver for the balancer.
func NewDriver(lb *llmlb.Balancer, cfg TrafficSpec, logger *slog.Logger) *Driver {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = defaultPrompts
	}
	return &Driver{
		lb:     lb,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Run drives traffic until the configured duration elapses or ctx is
// cancelled, waits for in-flight requests to drain, and returns the final
// tally.
func (d *Driver) Run(ctx context.Context) Report {
	if d.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Duration)
		defer cancel()
	}

	interval := time.Second / time.Duration(d.cfg.RPS)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("traffic started",
		"rps", d.cfg.RPS,
		"duration", d.cfg.Duration,
		"repeat_rate", d.cfg.RepeatRate,
	)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			report := d.Report()
			d.logger.Info("traffic finished",
				"sent", report.Sent,
				"succeeded", report.Succeeded,
				"failed", report.Failed,
				"cached", report.Cached,
			)
			return report
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.fire(ctx)
			}()
		}
	}
}

func (d *Driver) fire(ctx context.Context) {
	req := &llmlb.Request{
		Prompt:      d.nextPrompt(),
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
		Priority:    d.nextPriority(),
	}
	d.sent.Add(1)

	resp, err := d.lb.Complete(ctx, req)
	switch {
	case err == nil:
		d.succeeded.Add(1)
		if resp.Cached {
			d.cached.Add(1)
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown raced the request. Not a provider failure.
		d.cancelled.Add(1)
	default:
		d.failed.Add(1)
		d.logger.Debug("request failed", "error", err)
	}
}

// nextPrompt reuses a pool prompt at the configured repeat rate so a slice
// of traffic is cacheable, and makes the rest unique.
func (d *Driver) nextPrompt() string {
	d.rngMu.Lock()
	idx := d.rng.Intn(len(d.cfg.Prompts))
	repeat := d.rng.Float64() < d.cfg.RepeatRate
	d.rngMu.Unlock()

	prompt := d.cfg.Prompts[idx]
	if repeat {
		return prompt
	}
	return prompt + " [" + uuid.NewString() + "]"
}

// nextPriority samples the configured priority mix.
func (d *Driver) nextPriority() llmlb.Priority {
	mix := d.cfg.Mix
	total := mix.Low + mix.Normal + mix.High + mix.Critical
	if total <= 0 {
		return llmlb.PriorityNormal
	}

	d.rngMu.Lock()
	r := d.rng.Float64() * total
	d.rngMu.Unlock()

	switch {
	case r < mix.Low:
		return llmlb.PriorityLow
	case r < mix.Low+mix.Normal:
		return llmlb.PriorityNormal
	case r < mix.Low+mix.Normal+mix.High:
		return llmlb.PriorityHigh
	default:
		return llmlb.PriorityCritical
	}
}

// Report is the driver's own tally, independent of the balancer's counters.
type Report struct {
	Sent      uint64 `json:"sent"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Cached    uint64 `json:"cached"`
	Cancelled uint64 `json:"cancelled"`
}

// Report returns the current tally.
func (d *Driver) Report() Report {
	return Report{
		Sent:      d.sent.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Cached:    d.cached.Load(),
		Cancelled: d.cancelled.Load(),
	}
}
