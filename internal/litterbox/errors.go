package litterbox

import (
	"errors"
	"fmt"
)

// Kind classifies why a run ended without completing.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindDeviceUnreachable Kind = "device_unreachable"
	KindDeviceReported    Kind = "device_error"
	KindRecoveryFailed    Kind = "recovery_failed"
)

var (
	// ErrNoResponse is returned when the status fetch produced nothing.
	ErrNoResponse = errors.New("no response")
	// ErrDeviceReported marks errors the device itself reported. Device
	// implementations wrap it so the orchestrator can tell them apart from
	// network failures.
	ErrDeviceReported = errors.New("device reported error")
	// ErrRecoverySequence matches any *StepError.
	ErrRecoverySequence = errors.New("recovery sequence failed")
)

// Error is a fatal run error tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ConfigError tags err as a configuration error.
func ConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindConfiguration, Err: err}
}

// KindOf returns the Kind carried by err. Untagged errors are reported as
// device_unreachable, the only failure that can come from outside the core.
func KindOf(err error) Kind {
	var runErr *Error
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	if errors.Is(err, ErrRecoverySequence) {
		return KindRecoveryFailed
	}
	return KindDeviceUnreachable
}

// StepError reports the recovery step that failed. Steps before it have
// already been applied to the device.
type StepError struct {
	Step  int
	Field int
	Value any
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (set %d=%v): %v", e.Step, e.Field, e.Value, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target == ErrRecoverySequence
}
