package budget

import (
	"sync"
	"time"
)

// RollingWindow accumulates spend over a rolling time window using
// fixed-size buckets. Buckets that fall out of the window are pruned
// lazily whenever the window is touched, so no background timer runs.
type RollingWindow struct {
	mu         sync.Mutex
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
}

// bucket holds the spend recorded during one bucket interval, in
// micro-dollars.
type bucket struct {
	start time.Time
	micro int64
}

// NewRollingWindow creates a window of the given duration divided into
// bucketSize intervals.
func NewRollingWindow(window, bucketSize time.Duration) *RollingWindow {
	n := int(window / bucketSize)
	if n < 1 {
		n = 1
	}
	return &RollingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, n),
	}
}

// Add records spend, in micro-dollars, against the current bucket.
func (rw *RollingWindow) Add(micro int64) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := time.Now()
	rw.pruneLocked(now)
	rw.bucketLocked(now).micro += micro
}

// Sum returns the total spend, in micro-dollars, across all live buckets.
func (rw *RollingWindow) Sum() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(time.Now())

	var sum int64
	for i := range rw.buckets {
		if !rw.buckets[i].start.IsZero() {
			sum += rw.buckets[i].micro
		}
	}
	return sum
}

// OldestStart returns the start time of the oldest live bucket, or the
// zero time when the window is empty. The window frees capacity when the
// oldest bucket ages out.
func (rw *RollingWindow) OldestStart() time.Time {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	var oldest time.Time
	for i := range rw.buckets {
		start := rw.buckets[i].start
		if !start.IsZero() && (oldest.IsZero() || start.Before(oldest)) {
			oldest = start
		}
	}
	return oldest
}

// Reset drops all recorded spend.
func (rw *RollingWindow) Reset() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	for i := range rw.buckets {
		rw.buckets[i] = bucket{}
	}
}

func (rw *RollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-rw.window)
	for i := range rw.buckets {
		if !rw.buckets[i].start.IsZero() && rw.buckets[i].start.Before(cutoff) {
			rw.buckets[i] = bucket{}
		}
	}
}

// bucketLocked returns the bucket for now, claiming an empty slot or
// recycling the oldest one when the interval has no bucket yet.
func (rw *RollingWindow) bucketLocked(now time.Time) *bucket {
	start := now.Truncate(rw.bucketSize)

	for i := range rw.buckets {
		if rw.buckets[i].start.Equal(start) {
			return &rw.buckets[i]
		}
	}

	target := -1
	for i := range rw.buckets {
		if rw.buckets[i].start.IsZero() {
			target = i
			break
		}
	}
	if target == -1 {
		target = 0
		for i := 1; i < len(rw.buckets); i++ {
			if rw.buckets[i].start.Before(rw.buckets[target].start) {
				target = i
			}
		}
	}

	rw.buckets[target] = bucket{start: start}
	return &rw.buckets[target]
}
