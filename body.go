package looper

import (
	"context"
	"sync/atomic"
)

// Body is the unit of work a Controller runs once per iteration.
//
// A returned error or a panic is captured into the fatal error sink and stops
// the loop. Iterate must not block forever: stop signals are only observed
// between iterations.
type Body interface {
	Iterate(ctx context.Context, it *Iteration) error
}

// BodyFunc adapts a function to Body.
type BodyFunc func(ctx context.Context, it *Iteration) error

// Iterate calls f.
func (f BodyFunc) Iterate(ctx context.Context, it *Iteration) error {
	return f(ctx, it)
}

// SetupHook is implemented by bodies that need to prepare before the first
// iteration. A failure ends the run without iterations or teardown.
type SetupHook interface {
	Setup(ctx context.Context) error
}

// TeardownHook is implemented by bodies that need to clean up after the last
// iteration. It runs even when an iteration failed. ctx keeps the values of the
// Run context but is never cancelled, so cleanup works after a cancelled run.
type TeardownHook interface {
	Teardown(ctx context.Context) error
}

// Iteration describes the iteration in progress.
type Iteration struct {
	index            int
	canBeSoftStopped *atomic.Bool
}

// Index returns the zero-based number of the iteration within the current run.
func (it *Iteration) Index() int {
	return it.index
}

// PreventSoftStop keeps a pending soft stop from ending the loop after this
// iteration. Use it while work is still queued. It has no effect on Stop.
func (it *Iteration) PreventSoftStop() {
	it.canBeSoftStopped.Store(false)
}

type nopBody struct{}

func (nopBody) Iterate(context.Context, *Iteration) error { return nil }
