// Package perf accumulates per-window loop performance: idle time between
// iterations, the longest iteration durations and the percent-use history.
package perf

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/looper/types"
)

// DefaultCapacity is the number of longest iterations kept when New is given a
// non-positive capacity.
const DefaultCapacity = 5

// Tracker is safe for concurrent use. The loop goroutine writes to it while the
// owner reads or resets it.
type Tracker struct {
	mu          sync.Mutex
	capacity    int
	windowStart time.Time
	idle        time.Duration
	longest     []time.Duration // ascending
	percentUse  []float64
}

// New creates a tracker whose first window starts at now.
func New(capacity int, now time.Time) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Tracker{
		capacity:    capacity,
		windowStart: now,
		longest:     make([]time.Duration, 0, capacity),
	}
}

// AddIdle adds time spent sleeping between iterations.
func (t *Tracker) AddIdle(d time.Duration) {
	if d <= 0 {
		return
	}

	t.mu.Lock()
	t.idle += d
	t.mu.Unlock()
}

// RecordIteration offers an iteration duration to the longest list.
//
// While the list has room the value is inserted in order. Once full, the value
// replaces the current minimum only when strictly greater than it.
func (t *Tracker) RecordIteration(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.longest) < t.capacity {
		idx, _ := slices.BinarySearch(t.longest, d)
		t.longest = slices.Insert(t.longest, idx, d)

		return
	}

	if d <= t.longest[0] {
		return
	}

	t.longest = t.longest[1:]
	idx, _ := slices.BinarySearch(t.longest, d)
	t.longest = slices.Insert(t.longest, idx, d)
}

// Reset closes the current window at now and starts a new one.
//
// The returned report carries the closed window's start, idle time, percent use
// and longest list. Percent use is appended to the history.
func (t *Tracker) Reset(now time.Time) types.PerformanceReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := types.PerformanceReport{
		WindowStart:       t.windowStart,
		IdleTime:          t.idle,
		PercentUse:        PercentUse(t.idle, now.Sub(t.windowStart)),
		LongestIterations: slices.Clone(t.longest),
	}
	if report.LongestIterations == nil {
		report.LongestIterations = []time.Duration{}
	}

	t.percentUse = append(t.percentUse, report.PercentUse)
	t.windowStart = now
	t.idle = 0
	t.longest = t.longest[:0]

	return report
}

// WindowStart returns the start of the current window.
func (t *Tracker) WindowStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.windowStart
}

// Idle returns the idle time accumulated in the current window.
func (t *Tracker) Idle() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.idle
}

// Longest returns a copy of the current longest list, ascending.
func (t *Tracker) Longest() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.longest)
}

// PercentUseValues returns the percent use of every closed window, oldest first.
func (t *Tracker) PercentUseValues() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.percentUse)
}

// PercentUseStats summarizes the percent-use history. ok is false when no
// window has been closed yet.
func (t *Tracker) PercentUseStats() (stats types.PercentUseStats, ok bool) {
	values := t.PercentUseValues()
	if len(values) == 0 {
		return types.PercentUseStats{}, false
	}

	return Stats(values), true
}

// PercentUse returns 100 × (1 − idle/elapsed), or 0 when elapsed is not positive.
func PercentUse(idle, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}

	return 100 * (1 - idle.Seconds()/elapsed.Seconds())
}

// Stats computes min, max, mean and sample standard deviation of values,
// each rounded to 6 decimals. The deviation of a single value is 0.
func Stats(values []float64) types.PercentUseStats {
	if len(values) == 0 {
		return types.PercentUseStats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var stdev float64
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		stdev = math.Sqrt(sq / float64(len(values)-1))
	}

	return types.PercentUseStats{
		Min:   round6(slices.Min(values)),
		Max:   round6(slices.Max(values)),
		Mean:  round6(mean),
		Stdev: round6(stdev),
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
