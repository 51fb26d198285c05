package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDimensions is returned when a frame is declared with a
	// non-positive width or height.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")

	// ErrMalformedFrame is returned when a frame buffer is shorter than its
	// declared dimensions require.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrMalformedPointCloud is returned when a point cloud buffer is not a
	// whole number of samples.
	ErrMalformedPointCloud = errors.New("malformed point cloud")

	// ErrMalformedStream is returned when a persisted stream ends inside a
	// record or its compression layer is corrupt.
	ErrMalformedStream = errors.New("malformed stream")

	// ErrTransportClosed is returned when the simulator connection drops
	// mid-receive.
	ErrTransportClosed = errors.New("transport closed")

	// ErrConfigurationRejected is returned when the simulator refuses a
	// Start or Config message.
	ErrConfigurationRejected = errors.New("configuration rejected")
)

// LengthError reports a byte-length mismatch for a payload.
type LengthError struct {
	Kind error
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%v: want %d bytes, got %d", e.Kind, e.Want, e.Got)
}

func (e *LengthError) Unwrap() error {
	return e.Kind
}

// StreamError locates a decoding failure inside a persisted stream.
type StreamError struct {
	Index int // zero-based record index
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%v: record %d: %v", ErrMalformedStream, e.Index, e.Err)
}

func (e *StreamError) Unwrap() []error {
	return []error{ErrMalformedStream, e.Err}
}

// TickError attaches the tick index to an error raised while handling it.
type TickError struct {
	Tick uint64
	Err  error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %d: %v", e.Tick, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

// RejectionError carries the simulator's reason for refusing a message.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConfigurationRejected, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrConfigurationRejected
}
