package common

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceUnavailable is reported when a frame source, host container or valid
	// viewport size is missing at a step that needs it. Callers treat it as a no-op and
	// retry on the next trigger.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrStaleCallback marks a pose, detect or match result that arrived for an engine
	// handle that has since been cancelled or torn down.
	ErrStaleCallback = errors.New("stale engine callback")

	// ErrDisposed is returned by operations invoked after the owning session was disposed.
	ErrDisposed = errors.New("disposed")
)

// MarkerRegistrationError reports a marker bundle that could not be registered with a
// freshly constructed tracking engine, either because it is unreachable or malformed.
type MarkerRegistrationError struct {
	// Locator identifies the bundle that failed.
	Locator string
	// Err is the underlying engine error.
	Err error
}

func (e *MarkerRegistrationError) Error() string {
	return fmt.Sprintf("marker registration failed (%s): %v", e.Locator, e.Err)
}

func (e *MarkerRegistrationError) Unwrap() error {
	return e.Err
}

// EngineOperationError reports a failed warm-up or processing call. It is never fatal:
// the pipeline degrades to "no pose this tick".
type EngineOperationError struct {
	// Op names the engine call, e.g. "warmup".
	Op string
	// Err is the underlying engine error.
	Err error
}

func (e *EngineOperationError) Error() string {
	return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
}

func (e *EngineOperationError) Unwrap() error {
	return e.Err
}
