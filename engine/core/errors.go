package core

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidConfig is returned when the engine or a pass is configured with values it cannot use.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrZeroExtent guards every allocation sized by an extent.
	ErrZeroExtent = errors.New("extent has a zero dimension")
	// ErrResourceCreation wraps any failure while creating a GPU object.
	ErrResourceCreation = errors.New("gpu resource creation failed")
	// ErrInvalidHandle is returned when a handle does not name a live GPU object.
	ErrInvalidHandle = errors.New("invalid gpu handle")
	// ErrLayoutMismatch is returned when a descriptor write does not fit the declared layout.
	ErrLayoutMismatch = errors.New("descriptor layout mismatch")
	// ErrShaderCompilation is returned when a stage fails to compile.
	ErrShaderCompilation = errors.New("shader compilation failed")
	// ErrUnsupported is returned by backends for features the device or binding lacks.
	ErrUnsupported = errors.New("unsupported by the graphics backend")
	// ErrQueueFull and ErrQueueEmpty are returned by bounded queues.
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrTrackerClosed is returned when a shader tracker is closed twice.
	ErrTrackerClosed = errors.New("shader tracker already closed")
)

// Wrapf annotates err with a formatted message, keeping it matchable with errors.Is.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Newf builds a fresh error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
