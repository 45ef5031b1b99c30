package types

import "context"

// Hooks defines callbacks for Controller lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so a slow hook never delays an iteration. Hooks receive the context passed to
// Run, which is cancelled when the caller abandons the run.
//
// Hook errors are logged but never change the outcome of a run.
//
// Example:
//
//	hooks := &looper.Hooks{
//	    OnFatalError: func(ctx context.Context, fe *looper.FatalError) error {
//	        alerts <- fe.Fingerprint
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called when the controller state transitions.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnFatalError is called after a fatal error was captured and pushed to the sink.
	OnFatalError func(ctx context.Context, fe *FatalError) error
}
