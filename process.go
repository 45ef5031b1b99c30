package looper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nuid"
	"github.com/shirou/gopsutil/v3/process"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/looper/flags"
	"github.com/arloliu/looper/internal/heartbeat"
	"github.com/arloliu/looper/sink"
)

// errorChannel is the sink channel carrying fatal errors of process workers.
const errorChannel = "errors"

// ProcessUsage is a resource snapshot of a running child process.
type ProcessUsage struct {
	CPUPercent float64
	RSSBytes   uint64
	NumThreads int32
}

// ProcessWorker runs a registered Body in a child process.
//
// The child is the current executable re-run with an environment variable
// describing the worker; it must call RunChildIfRequested early in main (or
// TestMain). Parent and child share NATS KV flags and a JetStream fatal error
// sink scoped by a per-worker instance ID, so the embedded Controller's Stop,
// SoftStop, HardStop and observers act on the child.
//
// The child exits 0 after a caught fatal error; a non-zero exit status means it
// crashed outside the controller's control. While running, the child publishes
// a heartbeat every Process.HeartbeatInterval (see IsResponsive).
type ProcessWorker struct {
	*Controller

	nc         *nats.Conn
	errSink    *sink.JetStream[*FatalError]
	kv         jetstream.KeyValue
	instanceID string

	stdout io.Writer
	stderr io.Writer

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	exited   bool
}

// NewProcessWorker prepares a process worker for the body registered as name.
//
// Parameters:
//   - ctx: Context for creating the KV bucket, stream and consumer
//   - nc: NATS connection reachable from the child by URL
//   - name: Name the body was registered under with Register
//   - cfg: Configuration; nil uses DefaultConfig. It is handed to the child.
//   - opts: Options for the parent-side controller (WithLogger, WithMetrics, ...)
//
// Returns:
//   - *ProcessWorker: Worker ready to Start
//   - error: ErrNATSConnectionRequired, ErrBodyNotRegistered, a wrapped
//     ErrInvalidConfig or a NATS setup failure
func NewProcessWorker(ctx context.Context, nc *nats.Conn, name string, cfg *Config, opts ...Option) (*ProcessWorker, error) {
	if nc == nil {
		return nil, ErrNATSConnectionRequired
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	instanceID := nuid.Next()
	res, err := newProcessResources(ctx, nc, name, instanceID, c, opts)
	if err != nil {
		return nil, err
	}

	return &ProcessWorker{
		Controller: res.ctrl,
		nc:         nc,
		errSink:    res.errSink,
		kv:         res.kv,
		instanceID: instanceID,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		done:       make(chan struct{}),
	}, nil
}

// processResources are the NATS-backed pieces shared by the parent and child
// sides of a process worker.
type processResources struct {
	ctrl    *Controller
	errSink *sink.JetStream[*FatalError]
	kv      jetstream.KeyValue
}

// newProcessResources builds the controller of a process worker on its KV flags
// and JetStream sink.
func newProcessResources(
	ctx context.Context,
	nc *nats.Conn,
	name string,
	instanceID string,
	cfg Config,
	opts []Option,
) (*processResources, error) {
	body, err := lookupBody(name)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := flags.OpenBucket(ctx, js, cfg.Process.KVBucket)
	if err != nil {
		return nil, err
	}

	errSink, err := sink.NewJetStream[*FatalError](ctx, js, sink.JetStreamConfig{
		Stream:           cfg.Process.StreamPrefix,
		Channel:          errorChannel,
		ID:               instanceID,
		OperationTimeout: cfg.Process.OperationTimeout,
		Logger:           optionLogger(opts),
	})
	if err != nil {
		return nil, err
	}

	flagSet := flags.FromBucket(kv, instanceID, cfg.Process.OperationTimeout)
	opts = append(opts, WithFlags(flagSet), WithName(name))
	ctrl, err := NewController(body, errSink, &cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &processResources{ctrl: ctrl, errSink: errSink, kv: kv}, nil
}

// optionLogger returns the logger set by WithLogger in opts, or nil.
func optionLogger(opts []Option) Logger {
	var o controllerOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o.logger
}

// InstanceID returns the ID scoping this worker's flags and sink.
func (w *ProcessWorker) InstanceID() string {
	return w.instanceID
}

// SetOutput redirects the child's stdout and stderr. Must be called before Start.
func (w *ProcessWorker) SetOutput(stdout, stderr io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stdout = stdout
	w.stderr = stderr
}

// Start launches the child process. A worker can be started only once.
//
// Cancelling ctx sends SIGTERM to the child, which stops its loop and runs
// teardown; it is killed if it has not exited after Process.ShutdownTimeout.
func (w *ProcessWorker) Start(ctx context.Context, opts ...RunOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd != nil {
		return ErrAlreadyStarted
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	ro := applyRunOptions(opts)
	spec := childSpec{
		Name:          w.name,
		InstanceID:    w.instanceID,
		NATSURL:       w.nc.ConnectedUrl(),
		Config:        w.cfg,
		MaxIterations: ro.maxIterations,
		Setup:         ro.setup,
		Teardown:      ro.teardown,
	}
	encoded, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode child spec: %w", err)
	}

	//nolint:gosec // re-executes the current binary
	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), childSpecEnv+"="+string(encoded))
	cmd.Stdout = w.stdout
	cmd.Stderr = w.stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = w.cfg.Process.ShutdownTimeout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker %s: %w", w.name, err)
	}
	w.cmd = cmd

	w.logger.Info("started process worker", "pid", cmd.Process.Pid, "instance", w.instanceID)

	go w.monitorProcess(cmd)

	return nil
}

// monitorProcess waits for the child and records its exit status.
func (w *ProcessWorker) monitorProcess(cmd *exec.Cmd) {
	err := cmd.Wait()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	w.mu.Lock()
	w.exitCode = code
	w.exited = true
	w.mu.Unlock()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		w.logger.Info("process worker exited", "pid", cmd.Process.Pid)
	case errors.As(err, &exitErr):
		w.logger.Error("process worker exited abnormally", "pid", cmd.Process.Pid, "exitCode", code)
	default:
		w.logger.Error("process worker wait failed", "pid", cmd.Process.Pid, "error", err)
	}

	close(w.done)
}

// Join blocks until the child exits or ctx is done.
func (w *ProcessWorker) Join(ctx context.Context) error {
	w.mu.Lock()
	started := w.cmd != nil
	w.mu.Unlock()

	if !started {
		return ErrNotStarted
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsAlive reports whether the child was started and has not exited.
func (w *ProcessWorker) IsAlive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cmd != nil && !w.exited
}

// ExitCode returns the child's exit status. ok is false until it exited.
// A child killed by a signal reports -1.
func (w *ProcessWorker) ExitCode() (code int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.exitCode, w.exited
}

// Pid returns the child's process ID, or 0 before Start.
func (w *ProcessWorker) Pid() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}

	return w.cmd.Process.Pid
}

// Usage samples CPU and memory use of the running child.
func (w *ProcessWorker) Usage(ctx context.Context) (ProcessUsage, error) {
	pid := w.Pid()
	if pid == 0 {
		return ProcessUsage{}, ErrNotStarted
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("failed to inspect pid %d: %w", pid, err)
	}

	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("failed to read cpu of pid %d: %w", pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("failed to read memory of pid %d: %w", pid, err)
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("failed to read threads of pid %d: %w", pid, err)
	}

	return ProcessUsage{CPUPercent: cpu, RSSBytes: mem.RSS, NumThreads: threads}, nil
}

// Terminate sends SIGTERM and waits for the child to exit, killing it after
// Process.ShutdownTimeout.
func (w *ProcessWorker) Terminate(ctx context.Context) error {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()

	if cmd == nil {
		return ErrNotStarted
	}
	if !w.IsAlive() {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal pid %d: %w", cmd.Process.Pid, err)
	}

	timer := time.NewTimer(w.cfg.Process.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		w.logger.Warn("process worker ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		return w.Kill()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastHeartbeat returns when the child last reported liveness. ok is false
// before the first heartbeat and after the child stopped cleanly.
func (w *ProcessWorker) LastHeartbeat(ctx context.Context) (last time.Time, ok bool, err error) {
	return heartbeat.Last(ctx, w.kv, w.instanceID)
}

// IsResponsive reports whether the child published a heartbeat within the
// last three heartbeat intervals.
func (w *ProcessWorker) IsResponsive(ctx context.Context) bool {
	last, ok, err := w.LastHeartbeat(ctx)
	if err != nil || !ok {
		return false
	}

	return time.Since(last) <= 3*w.cfg.Process.HeartbeatInterval
}

// Kill terminates the child immediately. Teardown does not run.
func (w *ProcessWorker) Kill() error {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()

	if cmd == nil {
		return ErrNotStarted
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill pid %d: %w", cmd.Process.Pid, err)
	}

	return nil
}

// Run executes the body in the current process against the worker's shared
// flags and sink, then waits for the sink's pending writes.
func (w *ProcessWorker) Run(ctx context.Context, opts ...RunOption) error {
	if err := w.Controller.Run(ctx, opts...); err != nil {
		return err
	}

	return w.flush(ctx)
}

func (w *ProcessWorker) flush(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(ctx, w.cfg.Process.OperationTimeout)
	defer cancel()

	return w.errSink.Flush(flushCtx)
}

// Close removes the worker's consumer, flag keys and heartbeat. The child must
// have exited.
func (w *ProcessWorker) Close(ctx context.Context) error {
	var hbErr error
	if err := w.kv.Purge(ctx, heartbeat.Key(w.instanceID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		hbErr = err
	}

	return errors.Join(
		w.errSink.Delete(ctx),
		flags.PurgeKVFlags(ctx, w.flags),
		hbErr,
	)
}
