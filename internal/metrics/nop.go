// Package metrics provides MetricsCollector implementations for the looper library.
package metrics

import (
	"time"

	"github.com/arloliu/looper/types"
)

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	ctrl, err := looper.NewController(body, sink, &cfg, looper.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// LoopMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* worker */ string, _ /* from */, _ /* to */ types.State) {
	// No-op
}

// RecordIteration discards the iteration metric.
func (n *NopMetrics) RecordIteration(_ /* worker */ string, _ /* duration */ time.Duration) {
	// No-op
}

// PerformanceMetrics implementation

// RecordIdle discards the idle metric.
func (n *NopMetrics) RecordIdle(_ /* worker */ string, _ /* idle */ time.Duration) {
	// No-op
}

// SetPercentUse discards the percent use metric.
func (n *NopMetrics) SetPercentUse(_ /* worker */ string, _ /* percent */ float64) {
	// No-op
}

// ErrorMetrics implementation

// RecordFatalError discards the fatal error metric.
func (n *NopMetrics) RecordFatalError(_ /* worker */ string, _ /* phase */ types.Phase) {
	// No-op
}

// RecordSinkFailure discards the sink failure metric.
func (n *NopMetrics) RecordSinkFailure(_ /* worker */ string) {
	// No-op
}
