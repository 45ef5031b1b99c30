// Package testing provides test utilities for the looper library.
//
// It follows Go's convention of providing testing utilities in a dedicated
// package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server with JetStream
//   - CreateJetStreamKV: KV bucket for flag tests
//   - CreateWorkQueueStream: Work-queue stream for sink tests
//   - NewTestLogger: Logger that writes through testing.T and records entries
//
// Example usage:
//
//	import (
//	    "testing"
//	    loopertest "github.com/arloliu/looper/testing"
//	)
//
//	func TestProcessWorker(t *testing.T) {
//	    _, nc := loopertest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
