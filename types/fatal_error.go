package types

import (
	"fmt"
	"time"
)

// Phase identifies the part of a run in which a fatal error was captured.
type Phase string

const (
	// PhaseSetup covers the setup hook.
	PhaseSetup Phase = "setup"

	// PhaseIteration covers the iteration body.
	PhaseIteration Phase = "iteration"

	// PhaseTeardown covers the teardown hook.
	PhaseTeardown Phase = "teardown"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseSetup, PhaseIteration, PhaseTeardown:
		return string(p)
	default:
		return "unknown"
	}
}

// FatalError is an error or panic captured by a controller, enriched with a
// formatted stack trace.
//
// Within a single process the original error stays reachable through Unwrap, so
// errors.Is and errors.As work. Across a process boundary only the exported data
// fields survive JSON encoding.
type FatalError struct {
	Phase       Phase     `json:"phase"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Trace       string    `json:"trace"`
	Fingerprint uint64    `json:"fingerprint"`
	Time        time.Time `json:"time"`

	err error
}

// NewFatalError builds a FatalError wrapping err. Kind defaults to the dynamic
// type name of err.
func NewFatalError(phase Phase, err error, trace string, fingerprint uint64) *FatalError {
	fe := &FatalError{
		Phase:       phase,
		Trace:       trace,
		Fingerprint: fingerprint,
		Time:        time.Now().UTC(),
		err:         err,
	}
	if err != nil {
		fe.Kind = fmt.Sprintf("%T", err)
		fe.Message = err.Error()
	}

	return fe
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error during %s: %s: %s", e.Phase, e.Kind, e.Message)
}

// Unwrap returns the original error, or nil when the FatalError was decoded
// from another process.
func (e *FatalError) Unwrap() error {
	return e.err
}
