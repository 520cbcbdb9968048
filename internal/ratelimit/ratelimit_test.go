package ratelimit

import (
	"sync"
	"testing"
)

func TestProviderLimiter_UnlimitedByDefault(t *testing.T) {
	pl := New()

	for i := 0; i < 1000; i++ {
		if !pl.Allow("unregistered") {
			t.Fatal("provider without a ceiling must never be limited")
		}
	}
	if got := pl.RPM("unregistered"); got != 0 {
		t.Errorf("RPM() = %d, want 0", got)
	}
}

func TestProviderLimiter_BurstThenLimit(t *testing.T) {
	pl := New()
	pl.Set("p1", 60) // 1 rps, burst 10

	granted := 0
	for i := 0; i < 50; i++ {
		if pl.Allow("p1") {
			granted++
		}
	}

	// The burst drains, then refill at 1 rps admits at most a token or
	// two during the loop.
	if granted < 10 || granted > 12 {
		t.Errorf("granted %d calls, want the burst of ~10", granted)
	}
}

func TestProviderLimiter_IndependentProviders(t *testing.T) {
	pl := New()
	pl.Set("limited", 60)

	for i := 0; i < 20; i++ {
		pl.Allow("limited")
	}

	if !pl.Allow("other") {
		t.Error("limits must be scoped per provider")
	}
}

func TestProviderLimiter_SetUpdatesCeiling(t *testing.T) {
	pl := New()
	pl.Set("p1", 60)
	if got := pl.RPM("p1"); got != 60 {
		t.Fatalf("RPM() = %d, want 60", got)
	}

	pl.Set("p1", 600)
	if got := pl.RPM("p1"); got != 600 {
		t.Errorf("RPM() after update = %d, want 600", got)
	}

	pl.Set("p1", 0)
	if got := pl.RPM("p1"); got != 0 {
		t.Errorf("RPM() after removal = %d, want 0", got)
	}
	for i := 0; i < 100; i++ {
		if !pl.Allow("p1") {
			t.Fatal("removed ceiling must stop limiting")
		}
	}
}

func TestProviderLimiter_MinimumBurst(t *testing.T) {
	pl := New()
	pl.Set("tiny", 1) // burst floor kicks in

	if !pl.Allow("tiny") {
		t.Error("first call should pass on the minimum burst")
	}
	if pl.Allow("tiny") {
		t.Error("second immediate call should be limited at 1 rpm")
	}
}

func TestProviderLimiter_Concurrent(t *testing.T) {
	pl := New()
	pl.Set("p1", 600)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pl.Allow("p1")
				if j%10 == 0 {
					pl.Set("p1", 600+n)
				}
			}
		}(i)
	}
	wg.Wait()
}
