package looper

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
)

// BodyFactory builds a fresh Body. Process workers call it once in the parent
// for in-process Run and once in the child.
type BodyFactory func() Body

var registry = xsync.NewMap[string, BodyFactory]()

// Register makes factory available to process workers under name.
//
// Both the parent and the child resolve bodies by name, so registration must
// happen in code that runs in both, typically an init function or the start of
// main before RunChildIfRequested.
func Register(name string, factory BodyFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrBodyNotRegistered, name)
	}

	if _, loaded := registry.LoadOrStore(name, factory); loaded {
		return fmt.Errorf("%w: %q", ErrBodyAlreadyRegistered, name)
	}

	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(name string, factory BodyFactory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Registered reports whether name has a registered factory.
func Registered(name string) bool {
	_, ok := registry.Load(name)
	return ok
}

func lookupBody(name string) (Body, error) {
	factory, ok := registry.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBodyNotRegistered, name)
	}

	return factory(), nil
}
