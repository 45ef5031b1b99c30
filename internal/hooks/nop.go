// Package hooks provides default lifecycle hooks for the looper library.
package hooks

import (
	"context"

	"github.com/arloliu/looper/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, *types.FatalError) error        = (*NopHooks)(nil).OnFatalError
)

// NewNop creates a new no-op hooks implementation.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnStateChanged: h.OnStateChanged,
		OnFatalError:   h.OnFatalError,
	}
}

// Merge returns hooks where every nil callback of h is replaced by a no-op.
func Merge(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnStateChanged != nil {
		out.OnStateChanged = h.OnStateChanged
	}
	if h.OnFatalError != nil {
		out.OnFatalError = h.OnFatalError
	}

	return out
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _, _ types.State) error {
	return nil
}

// OnFatalError is a no-op implementation.
func (h *NopHooks) OnFatalError(_ context.Context, _ *types.FatalError) error {
	return nil
}
