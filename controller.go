package looper

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/arloliu/looper/flags"
	"github.com/arloliu/looper/internal/hooks"
	"github.com/arloliu/looper/internal/logging"
	"github.com/arloliu/looper/internal/metrics"
	"github.com/arloliu/looper/internal/perf"
	"github.com/arloliu/looper/internal/trace"
	"github.com/arloliu/looper/types"
)

// DefaultName is the controller name used when WithName is not given.
const DefaultName = "looper"

// Controller runs one Body repeatedly with soft and hard stop support, fatal
// error capture and idle/busy time measurement.
//
// A Controller runs on whatever goroutine calls Run. ThreadWorker and
// ProcessWorker bind it to a goroutine or a child process.
//
// Run sequence:
//
//	Created → SettingUp → Looping → TearingDown → Stopped
//
// Concurrency:
//   - Stop, SoftStop, HardStop, the observers and ResetPerformanceTracker are
//     safe to call from any goroutine
//   - Only one Run may be active at a time
type Controller struct {
	name     string
	body     Body
	sink     types.ErrorSink
	cfg      Config
	flags    types.Flags
	drainers []namedDrainer

	logger  Logger
	metrics MetricsCollector
	hooks   types.Hooks

	clock   clock
	tracker *perf.Tracker

	running          atomic.Bool
	state            atomic.Int32
	canBeSoftStopped atomic.Bool
}

// NewController creates a controller for body reporting fatal errors to sink.
//
// Parameters:
//   - body: Iteration body; nil runs no-op iterations
//   - sink: Fatal error sink (required)
//   - cfg: Configuration; nil uses DefaultConfig. Missing values get defaults.
//   - opts: Optional dependencies (WithLogger, WithMetrics, WithHooks, WithFlags, WithDrainer, WithName)
//
// Returns:
//   - *Controller: Ready to Run
//   - error: ErrSinkRequired, ErrFlagRequired or a wrapped ErrInvalidConfig
//
// Example:
//
//	errs := sink.NewMemory[*looper.FatalError]()
//	ctrl, err := looper.NewController(looper.BodyFunc(poll), errs, nil)
//	if err != nil {
//	    return err
//	}
//	go ctrl.Run(ctx)
//	defer ctrl.HardStop(5 * time.Second)
func NewController(body Body, sink types.ErrorSink, cfg *Config, opts ...Option) (*Controller, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	options := &controllerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	flagSet := flags.NewAtomicFlags()
	if options.flags != nil {
		if !options.flags.Complete() {
			return nil, ErrFlagRequired
		}
		flagSet = *options.flags
	}

	if body == nil {
		body = nopBody{}
	}

	name := options.name
	if name == "" {
		name = DefaultName
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		// Validate already accepted the level.
		l, _ := logging.NewSlogLevel(os.Stderr, c.LogLevel)
		loggerInstance = l.With("worker", name)
	}

	c.ValidateWithWarnings(loggerInstance)

	clk := realClock{}
	ctrl := &Controller{
		name:     name,
		body:     body,
		sink:     sink,
		cfg:      c,
		flags:    flagSet,
		drainers: options.drainers,
		logger:   loggerInstance,
		metrics:  metricsCollector,
		hooks:    hooks.Merge(options.hooks),
		clock:    clk,
		tracker:  perf.New(c.LongestIterationsCapacity, clk.Now()),
	}
	ctrl.state.Store(int32(StateCreated))

	return ctrl, nil
}

// Run drives the loop on the calling goroutine until it stops.
//
// Fatal errors are not returned; they go to the sink. Run returns
// ErrAlreadyRunning when another Run on the same controller is active, nil
// otherwise. Cancelling ctx acts like Stop and interrupts the idle sleep.
//
// Sequential Run calls on one controller are allowed, which lets tests drive a
// single iteration at a time. Flags are never cleared between runs.
func (c *Controller) Run(ctx context.Context, opts ...RunOption) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	ro := applyRunOptions(opts)

	if ro.setup {
		c.transition(ctx, StateSettingUp)
		if hook, ok := c.body.(SetupHook); ok {
			if err := trace.Call(func() error { return hook.Setup(ctx) }); err != nil {
				c.reportFatal(ctx, PhaseSetup, err)
				c.transition(ctx, StateStopped)

				return nil
			}
		}
	}

	c.flags.StartupComplete.Set()
	c.transition(ctx, StateLooping)
	c.loop(ctx, ro.maxIterations)

	if ro.teardown {
		// The loop may have ended because ctx was cancelled; cleanup still needs
		// a live context.
		teardownCtx := context.WithoutCancel(ctx)
		c.transition(ctx, StateTearingDown)
		if hook, ok := c.body.(TeardownHook); ok {
			if err := trace.Call(func() error { return hook.Teardown(teardownCtx) }); err != nil {
				c.reportFatal(teardownCtx, PhaseTeardown, err)
			}
		}
		c.flags.TeardownComplete.Set()
	}

	c.transition(ctx, StateStopped)

	return nil
}

func (c *Controller) loop(ctx context.Context, maxIterations int) {
	completed := 0
	it := &Iteration{canBeSoftStopped: &c.canBeSoftStopped}

	for {
		start := c.clock.Now()
		c.canBeSoftStopped.Store(true)
		it.index = completed

		if err := trace.Call(func() error { return c.body.Iterate(ctx, it) }); err != nil {
			c.reportFatal(ctx, PhaseIteration, err)
			c.Stop()
		}

		if c.IsPreparingForSoftStop() && c.canBeSoftStopped.Load() {
			c.logger.Debug("soft stop accepted", "iteration", completed)
			c.Stop()
		}
		if ctx.Err() != nil {
			c.Stop()
		}
		if c.IsStopped() {
			return
		}

		elapsed := c.clock.Now().Sub(start)
		c.metrics.RecordIteration(c.name, elapsed)

		completed++
		if completed == maxIterations {
			return
		}

		c.tracker.RecordIteration(elapsed)
		if sleep := c.cfg.MinIterationDuration - elapsed; sleep > 0 {
			sleepStart := c.clock.Now()
			c.clock.Sleep(ctx, sleep)
			// Idle time is the sleep actually taken, capped at the planned one.
			idle := min(c.clock.Now().Sub(sleepStart), sleep)
			c.tracker.AddIdle(idle)
			c.metrics.RecordIdle(c.name, idle)
			if ctx.Err() != nil {
				c.Stop()
				return
			}
		}
	}
}

// reportFatal captures err with its trace and pushes it to the sink without blocking.
func (c *Controller) reportFatal(ctx context.Context, phase Phase, err error) {
	fe := trace.Capture(phase, err, 1)

	c.metrics.RecordFatalError(c.name, phase)
	c.logger.Error("fatal error captured",
		"phase", phase.String(),
		"kind", fe.Kind,
		"error", fe.Message,
		"fingerprint", fe.Fingerprint,
	)

	if putErr := c.sink.Put(fe); putErr != nil {
		c.metrics.RecordSinkFailure(c.name)
		c.logger.Error("failed to report fatal error to sink",
			"error", putErr,
			"trace", fe.Trace,
		)
	}

	c.fireHook(ctx, "OnFatalError", func(hctx context.Context) error {
		return c.hooks.OnFatalError(hctx, fe)
	})
}

func (c *Controller) transition(ctx context.Context, to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}

	c.metrics.RecordStateTransition(c.name, from, to)
	c.logger.Debug("state transition", "from", from.String(), "to", to.String())
	c.fireHook(ctx, "OnStateChanged", func(hctx context.Context) error {
		return c.hooks.OnStateChanged(hctx, from, to)
	})
}

// fireHook runs fn on its own goroutine so a slow hook never delays the loop.
func (c *Controller) fireHook(ctx context.Context, name string, fn func(context.Context) error) {
	go func() {
		if err := trace.Call(func() error { return fn(ctx) }); err != nil {
			c.logger.Warn("hook failed", "hook", name, "error", err)
		}
	}()
}

// Stop sets the stop flag. The loop exits after the current iteration.
func (c *Controller) Stop() {
	c.flags.Stop.Set()
}

// SoftStop sets the soft-stop flag. The loop exits after the first iteration
// that does not call Iteration.PreventSoftStop.
func (c *Controller) SoftStop() {
	c.flags.SoftStop.Set()
}

// HardStop stops the loop, waits for teardown to complete and drains every
// queue the controller knows about.
//
// The wait polls every HardStopPollInterval and gives up after timeout;
// timeout <= 0 waits indefinitely. A run started WithoutTeardown never
// completes teardown, so pass a timeout in that case.
func (c *Controller) HardStop(timeout time.Duration) *HardStopReport {
	c.Stop()

	var deadline time.Time
	if timeout > 0 {
		deadline = c.clock.Now().Add(timeout)
	}

	for !c.IsTeardownComplete() {
		if timeout > 0 && !c.clock.Now().Before(deadline) {
			c.logger.Warn("teardown did not complete before hard stop timeout", "timeout", timeout)
			break
		}
		c.clock.Sleep(context.Background(), c.cfg.HardStopPollInterval)
	}

	report := &HardStopReport{
		FatalErrors: c.drainFatalErrors(),
		Queues:      make(map[string][]any, len(c.drainers)),
	}
	for _, d := range c.drainers {
		report.Queues[d.label] = d.drainer.DrainItems()
	}

	return report
}

func (c *Controller) drainFatalErrors() []*FatalError {
	out := []*FatalError{}
	for {
		fe, ok, err := c.sink.TryGet()
		if err != nil {
			c.logger.Warn("failed to drain fatal error sink", "error", err)
			return out
		}
		if !ok {
			return out
		}
		out = append(out, fe)
	}
}

// IsStopped reports whether the stop flag is set.
func (c *Controller) IsStopped() bool {
	return c.flags.Stop.IsSet()
}

// IsPreparingForSoftStop reports whether the soft-stop flag is set.
func (c *Controller) IsPreparingForSoftStop() bool {
	return c.flags.SoftStop.IsSet()
}

// IsStartupComplete reports whether setup finished and the loop was entered.
func (c *Controller) IsStartupComplete() bool {
	return c.flags.StartupComplete.IsSet()
}

// IsTeardownComplete reports whether teardown finished.
func (c *Controller) IsTeardownComplete() bool {
	return c.flags.TeardownComplete.IsSet()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// Logger returns the logger the controller writes to.
func (c *Controller) Logger() Logger {
	return c.logger
}

// Config returns a copy of the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// FatalErrorSink returns the sink fatal errors are pushed into.
func (c *Controller) FatalErrorSink() types.ErrorSink {
	return c.sink
}

// ResetPerformanceTracker closes the current measurement window and starts a
// new one.
//
// The report holds the window start, idle time, percent use
// (100 × (1 − idle/elapsed), 0 for an empty window) and the longest iteration
// durations in ascending order.
func (c *Controller) ResetPerformanceTracker() PerformanceReport {
	report := c.tracker.Reset(c.clock.Now())
	c.metrics.SetPercentUse(c.name, report.PercentUse)

	return report
}

// PerformanceWindowStart returns when the current measurement window began.
func (c *Controller) PerformanceWindowStart() time.Time {
	return c.tracker.WindowStart()
}

// IdleTime returns the idle time accumulated in the current window.
func (c *Controller) IdleTime() time.Duration {
	return c.tracker.Idle()
}

// LongestIterations returns the longest iteration durations of the current
// window, ascending.
func (c *Controller) LongestIterations() []time.Duration {
	return c.tracker.Longest()
}

// PercentUseValues returns the percent use reported by every reset so far.
func (c *Controller) PercentUseValues() []float64 {
	return c.tracker.PercentUseValues()
}

// PercentUseStats summarizes PercentUseValues. ok is false before the first reset.
func (c *Controller) PercentUseStats() (PercentUseStats, bool) {
	return c.tracker.PercentUseStats()
}
