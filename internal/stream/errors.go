package stream

import "errors"

var (
	// ErrInvalidHandle is returned when a stream is attached to a nil
	// file handle. This is a configuration error at the call site and
	// is reported immediately, never deferred to the first read.
	ErrInvalidHandle = errors.New("stream: nil file handle")

	// ErrShortWrite is returned when a flush was accepted only
	// partially by the underlying handle. The stream is failed
	// afterwards and must be reopened.
	ErrShortWrite = errors.New("stream: flush wrote fewer bytes than requested")

	// ErrNotOpen is returned by I/O calls on a stream that has not
	// been opened or has been closed.
	ErrNotOpen = errors.New("stream: stream is not open")

	errWhence = errors.New("stream: invalid seek whence")
)
