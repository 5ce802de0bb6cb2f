package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrMemoryAllocation is returned when a runtime cannot satisfy an
	// allocation request.
	ErrMemoryAllocation = errors.New("out of memory")
	// ErrInvalidValue is returned for out of range arguments.
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidDevicePointer is returned when freeing or copying memory the
	// runtime did not allocate.
	ErrInvalidDevicePointer = errors.New("invalid device pointer")
	// ErrLaunchFailure is returned for rejected launch configurations and
	// for kernels that faulted while running.
	ErrLaunchFailure = errors.New("launch failure")
	// ErrNotInitialized is returned when a runtime is used before Initialize.
	ErrNotInitialized = errors.New("runtime not initialized")
	// ErrNotAvailable is returned when no runtime of a kind is compiled in.
	ErrNotAvailable = errors.New("runtime not available")
)

// Error records the runtime call that failed.
type Error struct {
	Runtime string
	Op      string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %v: %s", e.Runtime, e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s %s: %v", e.Runtime, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(runtime, op string, err error, format string, args ...any) *Error {
	return &Error{
		Runtime: runtime,
		Op:      op,
		Err:     err,
		Detail:  fmt.Sprintf(format, args...),
	}
}
