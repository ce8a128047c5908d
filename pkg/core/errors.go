package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Every typed error below matches exactly one of these via errors.Is.
var (
	ErrValidation               = errors.New("statement rejected")
	ErrMissingParameter         = errors.New("missing parameter")
	ErrUnsupportedParameterType = errors.New("unsupported parameter type")
	ErrNotFound                 = errors.New("template not found")
	ErrTimeout                  = errors.New("statement timed out")
	ErrExecution                = errors.New("statement execution failed")
)

// ValidationError is a classifier rejection. It carries the reason only,
// never the statement text.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// MissingParameterError names a placeholder that had no value.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q", e.Name)
}

// Is reports whether target is ErrMissingParameter.
func (e *MissingParameterError) Is(target error) bool { return target == ErrMissingParameter }

// UnsupportedParameterTypeError names a parameter whose value is not a bindable scalar.
type UnsupportedParameterTypeError struct {
	Name string
	Type string
}

func (e *UnsupportedParameterTypeError) Error() string {
	return fmt.Sprintf("parameter %q has unsupported type %s", e.Name, e.Type)
}

// Is reports whether target is ErrUnsupportedParameterType.
func (e *UnsupportedParameterTypeError) Is(target error) bool {
	return target == ErrUnsupportedParameterType
}

// NotFoundError is returned for an unknown template name.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("template %q not found", e.Name)
	}
	return fmt.Sprintf("template %q not found (available: %v)", e.Name, e.Available)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TimeoutError is returned when a statement exceeds its deadline and was cancelled.
type TimeoutError struct {
	Fingerprint string
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("statement %s timed out after %s", e.Fingerprint, e.Timeout)
	}
	return fmt.Sprintf("statement %s timed out", e.Fingerprint)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ExecutionError is an engine-reported failure on an already validated statement.
// Message is the trimmed engine message with parameter values redacted.
type ExecutionError struct {
	Fingerprint string
	Message     string
	Code        string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("statement %s failed: %s", e.Fingerprint, e.Message)
	if e.Code != "" {
		msg += fmt.Sprintf(" (SQLSTATE %s)", e.Code)
	}
	return msg
}

// Is reports whether target is ErrExecution.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// EngineError is how adapters report driver failures: the message is already
// trimmed to what the engine said, without detail or hint fields.
type EngineError struct {
	Message string
	Code    string
	Timeout bool
	Err     error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Err }
