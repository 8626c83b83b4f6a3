// ABOUTME: Error values returned by audio sessions
// ABOUTME: Callers compare them with errors.Is
package rdpsnd

import "errors"

var (
	// ErrNotReady is returned when samples arrive before a format is selected.
	// The samples are dropped.
	ErrNotReady = errors.New("no client format selected")

	// ErrInvalidInput covers bad format indexes, unusable formats and
	// inconsistent session state
	ErrInvalidInput = errors.New("invalid input")

	// ErrAllocation is returned when the pending buffer would exceed
	// Config.MaxBufferBytes
	ErrAllocation = errors.New("buffer allocation failed")

	// ErrTransport wraps channel read and write failures. It is fatal to
	// the session.
	ErrTransport = errors.New("transport failure")
)
