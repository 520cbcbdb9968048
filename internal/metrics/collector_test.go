package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.RecordRequest(&RequestMetrics{Provider: "alpha", Success: true, Latency: 20 * time.Millisecond, Tokens: 10, CostUSD: 0.001})
	c.RecordRequest(&RequestMetrics{Provider: "beta", Success: false, ErrorType: "timeout", Latency: 5 * time.Millisecond})
	c.RecordCacheHit(0.0009)
	c.RecordCacheMiss()
	c.RecordRetry("beta")
	c.RecordAdmissionRejection()
	c.RecordBudgetRejection()

	snap := c.Snapshot()
	if snap.TotalRequests != 2 || snap.Succeeded != 1 || snap.Failed != 1 {
		t.Errorf("request counters wrong: %+v", snap)
	}
	if snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Errorf("cache counters wrong: %+v", snap)
	}
	if snap.Retries != 1 || snap.AdmissionRejections != 1 || snap.BudgetRejections != 1 {
		t.Errorf("rejection counters wrong: %+v", snap)
	}

	wantCost := 0.001 + 0.0009
	if diff := snap.TotalCostUSD - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCostUSD = %v, want %v", snap.TotalCostUSD, wantCost)
	}
}

func TestCollector_PercentileSortedCopy(t *testing.T) {
	c := NewCollector()

	// Insert descending latencies; the window must keep insertion order.
	for ms := 100; ms >= 1; ms-- {
		c.RecordRequest(&RequestMetrics{
			Provider: "alpha",
			Success:  true,
			Latency:  time.Duration(ms) * time.Millisecond,
		})
	}

	if got := c.Percentile(0.50); got != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", got)
	}
	if got := c.Percentile(0.99); got != 100*time.Millisecond {
		t.Errorf("P99 = %v, want 100ms", got)
	}

	c.mu.Lock()
	first := c.latencies[0]
	c.mu.Unlock()
	if first != 100 {
		t.Errorf("window head = %d; Percentile must not reorder the live window", first)
	}
}

func TestCollector_PercentileEmpty(t *testing.T) {
	c := NewCollector()
	if got := c.Percentile(0.99); got != 0 {
		t.Errorf("Percentile on empty window = %v, want 0", got)
	}
	if got := c.AverageLatency(); got != 0 {
		t.Errorf("AverageLatency on empty window = %v, want 0", got)
	}
}

func TestCollector_WindowBounded(t *testing.T) {
	c := NewCollector()

	for i := 0; i < latencyWindowCap+1; i++ {
		c.appendLatency(uint64(i))
	}

	c.mu.Lock()
	size := len(c.latencies)
	head := c.latencies[0]
	c.mu.Unlock()

	want := latencyWindowCap + 1 - latencyWindowDrop
	if size != want {
		t.Errorf("window size = %d, want %d", size, want)
	}
	// The oldest chunk is dropped, so the head advanced by the drop count.
	if head != latencyWindowDrop {
		t.Errorf("window head = %d, want %d", head, latencyWindowDrop)
	}
}

func TestCollector_FailuresExcludedFromWindow(t *testing.T) {
	c := NewCollector()

	c.RecordRequest(&RequestMetrics{Provider: "alpha", Success: false, ErrorType: "provider_error", Latency: 500 * time.Millisecond})
	c.RecordRequest(&RequestMetrics{Provider: "alpha", Success: true, Latency: 10 * time.Millisecond})

	if got := c.Percentile(0.99); got != 10*time.Millisecond {
		t.Errorf("P99 = %v; failed calls must not pollute the latency window", got)
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordRequest(&RequestMetrics{
					Provider: "alpha",
					Success:  true,
					Latency:  time.Duration(j%50) * time.Millisecond,
				})
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.TotalRequests != 2000 || snap.Succeeded != 2000 {
		t.Errorf("TotalRequests = %d, Succeeded = %d, want 2000/2000", snap.TotalRequests, snap.Succeeded)
	}
}
