package runtime

import (
	"fmt"

	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
)

// MethodNotFoundError is returned by Call when no service exposes Method.
// It matches errspkg.ErrMethodNotFound with errors.Is.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("localbroker: method %q not found", e.Method)
}

func (e *MethodNotFoundError) Is(target error) bool {
	return target == errspkg.ErrMethodNotFound
}

// StartupError reports the first Started hook that failed during Start. It
// matches errspkg.ErrStartupFailed with errors.Is and unwraps to the hook's
// error.
type StartupError struct {
	Service string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("localbroker: service %q failed to start: %v", e.Service, e.Err)
}

func (e *StartupError) Unwrap() []error {
	return []error{errspkg.ErrStartupFailed, e.Err}
}

// HandlerPanicError is produced by the recoverer middleware when a method
// panics.
type HandlerPanicError struct {
	Method string
	Value  any
	Stack  []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("localbroker: method %q panicked: %v", e.Method, e.Value)
}
