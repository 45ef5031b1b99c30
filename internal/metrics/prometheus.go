package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/looper/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so constructing a
// controller never touches the registry.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec
	state            *prometheus.GaugeVec
	iterations       *prometheus.CounterVec
	iterationSeconds *prometheus.HistogramVec
	idleSeconds      *prometheus.CounterVec
	percentUse       *prometheus.GaugeVec
	fatalErrors      *prometheus.CounterVec
	sinkFailures     *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "looper" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "looper"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "state_transitions_total",
			Help:      "Total controller state transitions by target state.",
		}, []string{"worker", "from", "to"})

		p.state = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "state",
			Help:      "Current controller state (0=Created,1=SettingUp,2=Looping,3=TearingDown,4=Stopped).",
		}, []string{"worker"})

		p.iterations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Total completed iterations.",
		}, []string{"worker"})

		p.iterationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "iteration_duration_seconds",
			Help:      "Busy time of completed iterations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		}, []string{"worker"})

		p.idleSeconds = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "performance",
			Name:      "idle_seconds_total",
			Help:      "Total time spent sleeping between iterations in seconds.",
		}, []string{"worker"})

		p.percentUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "performance",
			Name:      "percent_use",
			Help:      "Percent of wall time spent inside iterations, as of the last tracker reset.",
		}, []string{"worker"})

		p.fatalErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "errors",
			Name:      "fatal_total",
			Help:      "Total fatal errors captured by phase (setup,iteration,teardown).",
		}, []string{"worker", "phase"})

		p.sinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "errors",
			Name:      "sink_put_failures_total",
			Help:      "Total fatal errors that could not be pushed into the sink.",
		}, []string{"worker"})

		p.reg.MustRegister(p.stateTransitions)
		p.reg.MustRegister(p.state)
		p.reg.MustRegister(p.iterations)
		p.reg.MustRegister(p.iterationSeconds)
		p.reg.MustRegister(p.idleSeconds)
		p.reg.MustRegister(p.percentUse)
		p.reg.MustRegister(p.fatalErrors)
		p.reg.MustRegister(p.sinkFailures)
	})
}

// RecordStateTransition counts the transition and updates the state gauge.
func (p *PrometheusCollector) RecordStateTransition(worker string, from, to types.State) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(worker, from.String(), to.String()).Inc()
	p.state.WithLabelValues(worker).Set(float64(to))
}

// RecordIteration counts the iteration and observes its busy time.
func (p *PrometheusCollector) RecordIteration(worker string, duration time.Duration) {
	p.ensureRegistered()
	p.iterations.WithLabelValues(worker).Inc()
	p.iterationSeconds.WithLabelValues(worker).Observe(duration.Seconds())
}

// RecordIdle adds idle time between iterations.
func (p *PrometheusCollector) RecordIdle(worker string, idle time.Duration) {
	p.ensureRegistered()
	p.idleSeconds.WithLabelValues(worker).Add(idle.Seconds())
}

// SetPercentUse sets the percent use gauge.
func (p *PrometheusCollector) SetPercentUse(worker string, percent float64) {
	p.ensureRegistered()
	p.percentUse.WithLabelValues(worker).Set(percent)
}

// RecordFatalError counts a captured fatal error.
func (p *PrometheusCollector) RecordFatalError(worker string, phase types.Phase) {
	p.ensureRegistered()
	p.fatalErrors.WithLabelValues(worker, phase.String()).Inc()
}

// RecordSinkFailure counts a failed sink put.
func (p *PrometheusCollector) RecordSinkFailure(worker string) {
	p.ensureRegistered()
	p.sinkFailures.WithLabelValues(worker).Inc()
}
