// Package types provides core type definitions and interfaces for the looper library.
//
// This package contains shared types that are used across multiple packages in the
// looper library. By keeping these types in a separate package, we avoid import cycles
// between the main looper package and its internal implementations (sinks, flags,
// metrics, logging).
//
// Key types:
//   - State: Controller lifecycle state
//   - Phase: Run phase in which a fatal error was captured
//   - FatalError: Captured failure with formatted stack trace
//   - Queue / ErrorSink: Non-blocking FIFO contract used for fatal error reporting
//   - Flag / Flags: Set-once signals shared across a concurrency boundary
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
