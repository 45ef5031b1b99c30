// Package trace turns errors and recovered panics into types.FatalError values
// carrying a formatted stack trace and a stable fingerprint.
package trace

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/looper/types"
)

const maxFrames = 64

// PanicError is a recovered panic converted to an error. It keeps the stack of
// the panicking goroutine as seen from the deferred recover.
type PanicError struct {
	Value any
	pcs   []uintptr
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}

// Call runs fn and converts a panic inside it into a *PanicError.
func Call(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
	}()

	return fn()
}

func newPanicError(v any) *PanicError {
	// 0 Callers, 1 newPanicError, 2 deferred func in Call, 3 gopanic
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(4, pcs)

	return &PanicError{Value: v, pcs: pcs[:n]}
}

// Capture builds a FatalError for err captured during phase.
//
// For a *PanicError the trace shows the panicking goroutine. Otherwise it shows
// the stack of the caller of Capture, skipping skip additional frames. The
// trace always ends with "\n  <kind> <message>".
func Capture(phase types.Phase, err error, skip int) *types.FatalError {
	kind := fmt.Sprintf("%T", err)
	message := err.Error()

	var pcs []uintptr
	if pe, ok := err.(*PanicError); ok {
		kind = fmt.Sprintf("%T", pe.Value)
		message = fmt.Sprint(pe.Value)
		pcs = pe.pcs
	} else {
		pcs = make([]uintptr, maxFrames)
		pcs = pcs[:runtime.Callers(skip+2, pcs)]
	}

	frames := resolve(pcs)
	fe := types.NewFatalError(phase, err, Format(frames, kind, message), Fingerprint(kind, message, frames))
	fe.Kind = kind
	fe.Message = message

	return fe
}

// Format renders frames the way runtime/debug.Stack does, followed by the
// error kind and message.
func Format(frames []runtime.Frame, kind, message string) string {
	var sb strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	fmt.Fprintf(&sb, "\n  %s %s", kind, message)

	return sb.String()
}

// Fingerprint hashes the kind, the message and the function names of frames.
// Line numbers are left out so the value survives unrelated edits.
func Fingerprint(kind, message string, frames []runtime.Frame) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(kind)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(message)
	for _, f := range frames {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(f.Function)
	}

	return h.Sum64()
}

func resolve(pcs []uintptr) []runtime.Frame {
	if len(pcs) == 0 {
		return nil
	}

	out := make([]runtime.Frame, 0, len(pcs))
	iter := runtime.CallersFrames(pcs)
	for {
		f, more := iter.Next()
		if f.Function != "runtime.goexit" {
			out = append(out, f)
		}
		if !more {
			break
		}
	}

	return out
}
