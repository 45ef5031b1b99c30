package looper

import (
	"context"
	"sync"

	"github.com/arloliu/looper/types"
)

// ThreadWorker runs a Controller on its own goroutine.
//
// The embedded Controller provides Stop, SoftStop, HardStop, the observers and
// Run for synchronous use in tests.
type ThreadWorker struct {
	*Controller

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewThreadWorker creates a goroutine-backed worker.
//
// Parameters and errors are those of NewController.
func NewThreadWorker(body Body, sink types.ErrorSink, cfg *Config, opts ...Option) (*ThreadWorker, error) {
	ctrl, err := NewController(body, sink, cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &ThreadWorker{Controller: ctrl, done: make(chan struct{})}, nil
}

// Start launches Run on a new goroutine. A worker can be started only once.
//
// Cancelling ctx stops the loop the same way Stop does.
func (w *ThreadWorker) Start(ctx context.Context, opts ...RunOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	go func() {
		defer close(w.done)
		if err := w.Controller.Run(ctx, opts...); err != nil {
			w.logger.Error("worker run failed", "error", err)
		}
	}()

	return nil
}

// Join blocks until the goroutine exits or ctx is done.
func (w *ThreadWorker) Join(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
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

// IsAlive reports whether the goroutine was started and has not exited.
func (w *ThreadWorker) IsAlive() bool {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if !started {
		return false
	}

	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the goroutine exits.
func (w *ThreadWorker) Done() <-chan struct{} {
	return w.done
}
