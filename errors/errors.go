package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Error kinds. Capability faults are reported to the model as data, so only
// ErrInferenceFailed and ErrStepLimit ever abort a run.
var (
	ErrSpawnFailure              = stderrors.New("command could not be started")
	ErrCapabilityNotFound        = stderrors.New("unknown capability")
	ErrCapabilityArgumentInvalid = stderrors.New("invalid capability arguments")
	ErrCapabilityExecutionFailed = stderrors.New("capability execution failed")
	ErrDuplicateCapability       = stderrors.New("capability already registered")
	ErrInferenceFailed           = stderrors.New("inference failed")
	ErrStepLimit                 = stderrors.New("step limit reached")
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	file, line := caller()
	return fmt.Errorf("[%s:%d] %s", file, line, fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	file, line := caller()
	return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), err)
}

// WrapKind is Wrapf for errors that also belong to one of the kinds above.
// Both kind and err stay reachable through Is and As. A nil err yields the
// kind itself annotated with the message.
func WrapKind(kind, err error, format string, a ...interface{}) error {
	file, line := caller()
	if err == nil {
		return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), kind)
	}
	return fmt.Errorf("[%s:%d] %s: %w: %w", file, line, fmt.Sprintf(format, a...), kind, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

func caller() (string, int) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???", 0
	}
	return filepath.Base(file), line
}
