// Package looper supervises long-running loops: one body, run repeatedly, with
// soft and hard stop, fatal error propagation and idle/busy time measurement.
//
// A Controller owns the loop. ThreadWorker runs it on a goroutine and
// ProcessWorker runs it in a child process coordinated over NATS.
//
// # Quick Start
//
//	errs := sink.NewMemory[*looper.FatalError]()
//
//	w, err := looper.NewThreadWorker(looper.BodyFunc(func(ctx context.Context, it *looper.Iteration) error {
//	    return pollOnce(ctx)
//	}), errs, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	report := w.HardStop(5 * time.Second)
//
// # Lifecycle
//
// Every Run moves the controller through:
//
//	Created → SettingUp → Looping → TearingDown → Stopped
//
// Setup and teardown are optional hooks on the body (SetupHook, TeardownHook).
// An iteration that returns an error or panics is captured as a *FatalError
// with a formatted stack trace, pushed to the sink, and stops the loop.
// Teardown still runs afterwards.
//
// # Stopping
//
//   - Stop: the loop exits after the current iteration
//   - SoftStop: the loop exits after the first iteration that did not call
//     Iteration.PreventSoftStop
//   - HardStop: Stop, wait for teardown, then drain the sink and every queue
//     registered with WithDrainer
//
// # Process Workers
//
// Bodies run in a child process must be registered by name in both the parent
// and the child, and the child must call RunChildIfRequested:
//
//	func main() {
//	    looper.MustRegister("poller", func() looper.Body { return &poller{} })
//	    looper.RunChildIfRequested()
//
//	    w, err := looper.NewProcessWorker(ctx, nc, "poller", nil)
//	    ...
//	}
//
// See the examples/ directory for complete working programs.
package looper
