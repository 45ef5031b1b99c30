// Package sink provides the fatal error sink bindings and the helpers used to
// inspect them.
//
// Two bindings implement types.Queue:
//   - Memory: mutex-guarded FIFO for controllers running on a goroutine
//   - JetStream: NATS JetStream work-queue stream for controllers running in a
//     child process
//
// Reads from a JetStream sink may lag behind writes made by another process, so
// it implements types.EventuallyConsistent and callers poll with
// IsEventuallyNotEmpty or SafeGet instead of trusting a single IsEmpty.
package sink
