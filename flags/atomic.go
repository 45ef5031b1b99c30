// Package flags provides the set-once signals a controller shares with its
// owner: atomic flags for goroutines and NATS KV backed flags for processes.
package flags

import (
	"sync/atomic"

	"github.com/arloliu/looper/types"
)

// Atomic is an in-process set-once flag.
type Atomic struct {
	v atomic.Bool
}

var _ types.Flag = (*Atomic)(nil)

// Set sets the flag.
func (a *Atomic) Set() { a.v.Store(true) }

// IsSet reports whether Set was called.
func (a *Atomic) IsSet() bool { return a.v.Load() }

// NewAtomicFlags returns a fresh set of in-process flags.
func NewAtomicFlags() types.Flags {
	return types.Flags{
		Stop:             &Atomic{},
		SoftStop:         &Atomic{},
		StartupComplete:  &Atomic{},
		TeardownComplete: &Atomic{},
	}
}
