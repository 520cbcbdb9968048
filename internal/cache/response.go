package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/llmlb/llmlb/pkg/types"
)

// Defaults applied by New for non-positive config values.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultMaxEntries    = 10000
	DefaultCostReduction = 0.9
)

// Config controls the response cache.
type Config struct {
	// TTL is how long an entry stays servable after insertion.
	TTL time.Duration
	// MaxEntries is the soft capacity: once reached, expired entries are
	// swept before the next insert.
	MaxEntries int
	// CostReduction scales the cached cost on every hit, reflecting that a
	// cached answer skips the provider call.
	CostReduction float64
}

// DefaultConfig returns the standard cache settings.
func DefaultConfig() Config {
	return Config{
		TTL:           DefaultTTL,
		MaxEntries:    DefaultMaxEntries,
		CostReduction: DefaultCostReduction,
	}
}

// ResponseCache stores completed responses keyed by request fingerprint.
// Expiry is lazy: expired entries are treated as absent on read and swept in
// bulk when the cache is at capacity. There is no background janitor.
type ResponseCache struct {
	store         *gocache.Cache
	ttl           time.Duration
	maxEntries    int
	costReduction float64

	hits   atomic.Uint64
	misses atomic.Uint64
	sets   atomic.Uint64
}

// New creates a response cache. Non-positive config fields fall back to the
// defaults.
func New(cfg Config) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.CostReduction <= 0 || cfg.CostReduction > 1 {
		cfg.CostReduction = DefaultCostReduction
	}

	return &ResponseCache{
		// Cleanup interval 0 disables go-cache's janitor; expiry stays
		// lazy plus the at-capacity sweep in Set.
		store:         gocache.New(cfg.TTL, 0),
		ttl:           cfg.TTL,
		maxEntries:    cfg.MaxEntries,
		costReduction: cfg.CostReduction,
	}
}

// Get returns the cached response for the request, if present and fresh.
// Hits are served as clones with the cost scaled down and Cached set, so the
// stored entry is never aliased or mutated.
func (c *ResponseCache) Get(req *types.Request) (*types.Response, bool) {
	val, found := c.store.Get(Fingerprint(req))
	if !found {
		c.misses.Add(1)
		return nil, false
	}

	stored, ok := val.(*types.Response)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	resp := stored.Clone()
	resp.CostUSD *= c.costReduction
	resp.Cached = true
	return resp, true
}

// Set stores a response under the request's fingerprint. When the cache is
// at capacity the expired entries are swept first; the insert itself always
// proceeds.
func (c *ResponseCache) Set(req *types.Request, resp *types.Response) {
	if resp == nil {
		return
	}

	if c.store.ItemCount() >= c.maxEntries {
		c.store.DeleteExpired()
	}

	c.store.Set(Fingerprint(req), resp.Clone(), c.ttl)
	c.sets.Add(1)
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones.
func (c *ResponseCache) Len() int {
	return c.store.ItemCount()
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current cache counters.
func (c *ResponseCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Entries: c.store.ItemCount(),
		HitRate: rate,
	}
}

// Flush drops every entry and is intended for tests and manual resets.
func (c *ResponseCache) Flush() {
	c.store.Flush()
}
