// Package corelib holds small collaborators shared by the request and
// task packages: sentinel errors, a cancellation predicate, and a
// generic thread-safe registry.
package corelib

import "errors"

var (
	// ErrInvalidRunnable is returned when a posted value is none of the
	// supported runnable shapes.
	ErrInvalidRunnable = errors.New("corelib: invalid runnable")
	// ErrClosed is returned by an operation on a closed Handler,
	// TaskStack, or TaskSpawner.
	ErrClosed = errors.New("corelib: closed")
	// ErrMissingAttachment is returned when OnExecute/OnPostExecute
	// required a collaborator that was nil.
	ErrMissingAttachment = errors.New("corelib: missing attachment")
	// ErrNotReady is returned by Preset on a Request/Task that has
	// already reached DONE.
	ErrNotReady = errors.New("corelib: not ready")
	// ErrCanceled is the sentinel a user body panics with (or wraps via
	// errors.Is) to signal that a cancellation, not a failure, caused
	// the panic. See IsCancellation.
	ErrCanceled = errors.New("corelib: canceled")
)

// IsCancellation reports whether a recovered panic value represents a
// cancellation rather than an ordinary failure. User code signals this
// by panicking with ErrCanceled, an error wrapping it (errors.Is), or a
// non-error value with a `Canceled() bool` method that returns true.
func IsCancellation(v any) bool {
	switch e := v.(type) {
	case error:
		return errors.Is(e, ErrCanceled)
	case interface{ Canceled() bool }:
		return e.Canceled()
	default:
		return false
	}
}
