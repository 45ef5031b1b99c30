package looper

import "github.com/arloliu/looper/types"

// Option configures a Controller with optional dependencies.
type Option func(*controllerOptions)

type namedDrainer struct {
	label   string
	drainer types.Drainer
}

// controllerOptions holds optional Controller configuration.
type controllerOptions struct {
	name     string
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	flags    *types.Flags
	drainers []namedDrainer
}

// WithName sets the controller name used in logs and metric labels.
//
// Example:
//
//	ctrl, err := looper.NewController(body, sink, &cfg, looper.WithName("poller"))
func WithName(name string) Option {
	return func(o *controllerOptions) {
		o.name = name
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewController
//
// Example:
//
//	hooks := &looper.Hooks{
//	    OnStateChanged: func(ctx context.Context, from, to looper.State) error {
//	        log.Printf("%s -> %s", from, to)
//	        return nil
//	    },
//	}
//	ctrl, err := looper.NewController(body, sink, &cfg, looper.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *controllerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	ctrl, err := looper.NewController(body, sink, &cfg,
//	    looper.WithMetrics(looper.NewPrometheusMetrics(prometheus.DefaultRegisterer, "")))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *controllerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewController
func WithLogger(logger Logger) Option {
	return func(o *controllerOptions) {
		o.logger = logger
	}
}

// WithFlags replaces the in-process atomic flags. Every flag must be non-nil.
//
// Process workers use this to share NATS KV backed flags between parent and child.
func WithFlags(flags types.Flags) Option {
	return func(o *controllerOptions) {
		o.flags = &flags
	}
}

// WithDrainer registers an extra queue that HardStop drains into
// HardStopReport.Queues under label.
//
// Example:
//
//	results := sink.NewMemory[Result]()
//	ctrl, err := looper.NewController(body, errs, &cfg, looper.WithDrainer("results", results))
func WithDrainer(label string, d types.Drainer) Option {
	return func(o *controllerOptions) {
		o.drainers = append(o.drainers, namedDrainer{label: label, drainer: d})
	}
}

// RunOption configures a single Run call.
type RunOption func(*runOptions)

type runOptions struct {
	maxIterations int // <= 0 means infinite
	setup         bool
	teardown      bool
}

func defaultRunOptions() runOptions {
	return runOptions{setup: true, teardown: true}
}

func applyRunOptions(opts []RunOption) runOptions {
	ro := defaultRunOptions()
	for _, opt := range opts {
		opt(&ro)
	}

	return ro
}

// WithMaxIterations stops the loop after n counted iterations. n <= 0 loops forever.
func WithMaxIterations(n int) RunOption {
	return func(o *runOptions) {
		o.maxIterations = n
	}
}

// WithoutSetup skips the setup hook.
func WithoutSetup() RunOption {
	return func(o *runOptions) {
		o.setup = false
	}
}

// WithoutTeardown skips the teardown hook. TeardownComplete is then never set.
func WithoutTeardown() RunOption {
	return func(o *runOptions) {
		o.teardown = false
	}
}

// withSetup and withTeardown are used when run options cross a process boundary.
func withSetup(enabled bool) RunOption {
	return func(o *runOptions) {
		o.setup = enabled
	}
}

func withTeardown(enabled bool) RunOption {
	return func(o *runOptions) {
		o.teardown = enabled
	}
}
