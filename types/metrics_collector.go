package types

import "time"

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods may be called from several controllers at once and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	LoopMetrics
	PerformanceMetrics
	ErrorMetrics
}

// LoopMetrics defines metrics for the run loop itself.
type LoopMetrics interface {
	// RecordStateTransition records a controller state transition.
	//
	// Parameters:
	//   - worker: Controller name
	//   - from: Previous state
	//   - to: New state
	RecordStateTransition(worker string, from, to State)

	// RecordIteration records the busy duration of one completed iteration.
	//
	// Parameters:
	//   - worker: Controller name
	//   - duration: Time spent inside the iteration body
	RecordIteration(worker string, duration time.Duration)
}

// PerformanceMetrics defines metrics derived from the performance tracker.
type PerformanceMetrics interface {
	// RecordIdle records time spent sleeping between iterations.
	RecordIdle(worker string, idle time.Duration)

	// SetPercentUse sets the percent use computed by the latest tracker reset (gauge metric).
	SetPercentUse(worker string, percent float64)
}

// ErrorMetrics defines metrics for captured fatal errors.
type ErrorMetrics interface {
	// RecordFatalError records a fatal error captured in the given phase.
	RecordFatalError(worker string, phase Phase)

	// RecordSinkFailure records a failed non-blocking put into the fatal error sink.
	RecordSinkFailure(worker string)
}
