package types

import "time"

// PerformanceReport is the snapshot returned when a controller's performance
// tracker is reset.
type PerformanceReport struct {
	// WindowStart is when the reported window began.
	WindowStart time.Time `json:"windowStart"`

	// IdleTime is the time spent sleeping between iterations during the window.
	IdleTime time.Duration `json:"idleTime"`

	// PercentUse is 100 × (1 − idle / elapsed); 0 when the window had no elapsed time.
	PercentUse float64 `json:"percentUse"`

	// LongestIterations holds the largest iteration durations of the window in
	// ascending order.
	LongestIterations []time.Duration `json:"longestIterations"`
}

// PercentUseStats summarizes the percent-use history across tracker resets.
// Values are rounded to 6 decimals.
type PercentUseStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
}

// HardStopReport holds everything drained from a controller after a hard stop.
type HardStopReport struct {
	// FatalErrors are the items drained from the fatal error sink, oldest first.
	FatalErrors []*FatalError `json:"fatalErrors"`

	// Queues holds the items drained from each registered drainer, keyed by label.
	Queues map[string][]any `json:"queues,omitempty"`
}
