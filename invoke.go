package looper

import (
	"context"
	"time"

	"github.com/arloliu/looper/sink"
	"github.com/arloliu/looper/types"
)

// Invokable is anything InvokeAndCheck can drive: a Controller, a ThreadWorker
// or a ProcessWorker.
type Invokable interface {
	Run(ctx context.Context, opts ...RunOption) error
	FatalErrorSink() types.ErrorSink
}

// InvokeOption configures InvokeAndCheck.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	iterations  int
	setup       bool
	teardown    bool
	gracePeriod time.Duration
	logger      Logger
}

// InvokeIterations sets how many iterations to run (default 1).
func InvokeIterations(n int) InvokeOption {
	return func(o *invokeOptions) {
		o.iterations = n
	}
}

// InvokeWithSetup runs the setup hook first.
func InvokeWithSetup() InvokeOption {
	return func(o *invokeOptions) {
		o.setup = true
	}
}

// InvokeWithTeardown runs the teardown hook last.
func InvokeWithTeardown() InvokeOption {
	return func(o *invokeOptions) {
		o.teardown = true
	}
}

// InvokeGracePeriod overrides how long an eventually consistent sink is polled.
func InvokeGracePeriod(d time.Duration) InvokeOption {
	return func(o *invokeOptions) {
		o.gracePeriod = d
	}
}

// InvokeLogger overrides the logger the popped error is reported to.
func InvokeLogger(l Logger) InvokeOption {
	return func(o *invokeOptions) {
		o.logger = l
	}
}

// InvokeAndCheck runs r synchronously and turns a captured fatal error into a
// returned error.
//
// By default it runs one iteration with setup and teardown suppressed. If the
// sink then holds an item, exactly one is popped, logged with its trace at error
// level, and returned as *FatalError. Later items stay in the sink.
//
// Example:
//
//	func TestPoller(t *testing.T) {
//	    w, _ := looper.NewThreadWorker(poller, sink.NewMemory[*looper.FatalError](), nil)
//	    require.NoError(t, looper.InvokeAndCheck(t.Context(), w))
//	}
func InvokeAndCheck(ctx context.Context, r Invokable, opts ...InvokeOption) error {
	o := invokeOptions{iterations: 1, gracePeriod: sink.DefaultPollWindow}
	if cfgr, ok := r.(interface{ Config() Config }); ok {
		o.gracePeriod = cfgr.Config().SinkGracePeriod
	}
	if lr, ok := r.(interface{ Logger() Logger }); ok {
		o.logger = lr.Logger()
	}
	for _, opt := range opts {
		opt(&o)
	}

	runOpts := []RunOption{WithMaxIterations(o.iterations)}
	if !o.setup {
		runOpts = append(runOpts, WithoutSetup())
	}
	if !o.teardown {
		runOpts = append(runOpts, WithoutTeardown())
	}

	if err := r.Run(ctx, runOpts...); err != nil {
		return err
	}

	errSink := r.FatalErrorSink()

	var fe *FatalError
	var found bool
	var err error
	if _, eventual := errSink.(types.EventuallyConsistent); eventual {
		fe, found, err = sink.SafeGet[*FatalError](errSink, o.gracePeriod)
	} else if !errSink.IsEmpty() {
		fe, found, err = errSink.TryGet()
	}
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if o.logger != nil {
		o.logger.Error("fatal error reported by worker",
			"phase", fe.Phase.String(),
			"error", fe.Message,
			"trace", fe.Trace,
		)
	}

	return fe
}
