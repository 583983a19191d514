package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a bridge error for surfacing and escalation logic.
type ErrorClass string

const (
	// ErrorClassDispatch indicates submission itself failed; fatal, no
	// polling ever starts.
	ErrorClassDispatch ErrorClass = "dispatch"

	// ErrorClassUnresponsive indicates sustained probe failures while a
	// request was outstanding; the execution is abandoned.
	ErrorClassUnresponsive ErrorClass = "unresponsive"

	// ErrorClassExecution indicates the engine resolved the request with an
	// error and no debug pause was observed; the engine's error text is
	// preserved and propagated.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassProtocol indicates a malformed or unexpected message from
	// the engine worker.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassInternal indicates a supervisor-side failure, such as a
	// canceled context or a violated single-flight invariant.
	ErrorClassInternal ErrorClass = "internal"
)

// BridgeError represents a classified error with context.
type BridgeError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// ExecutionID is the execution during which the error occurred, if any.
	ExecutionID string `json:"execution_id,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("[%s] %s (execution=%s): %s",
			e.Class, e.Message, e.ExecutionID, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

func (e *BridgeError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// NewDispatchError creates a new dispatch error.
func NewDispatchError(message string, err error) *BridgeError {
	return &BridgeError{
		Class:   ErrorClassDispatch,
		Message: message,
		Err:     err,
	}
}

// NewUnresponsiveError creates a new engine-unresponsive error.
func NewUnresponsiveError(message string, err error) *BridgeError {
	return &BridgeError{
		Class:   ErrorClassUnresponsive,
		Message: message,
		Err:     err,
	}
}

// NewExecutionError creates a new execution error carrying the engine's
// error text.
func NewExecutionError(message string, err error) *BridgeError {
	return &BridgeError{
		Class:   ErrorClassExecution,
		Message: message,
		Err:     err,
	}
}

// NewProtocolError creates a new protocol error.
func NewProtocolError(message string, err error) *BridgeError {
	return &BridgeError{
		Class:   ErrorClassProtocol,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *BridgeError {
	return &BridgeError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithCode adds an error code to an error.
func (e *BridgeError) WithCode(code string) *BridgeError {
	e.Code = code
	return e
}

// WithExecutionID adds execution context to an error.
func (e *BridgeError) WithExecutionID(executionID string) *BridgeError {
	e.ExecutionID = executionID
	return e
}

// IsDispatch returns true if the error is classified as a dispatch failure.
func IsDispatch(err error) bool {
	var e *BridgeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassDispatch
	}
	return false
}

// IsUnresponsive returns true if the error is classified as engine-unresponsive.
func IsUnresponsive(err error) bool {
	var e *BridgeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnresponsive
	}
	return false
}

// IsExecution returns true if the error is classified as an execution failure.
func IsExecution(err error) bool {
	var e *BridgeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassExecution
	}
	return false
}

// IsBusy returns true if the error reports a rejected concurrent RunOnce.
func IsBusy(err error) bool {
	var e *BridgeError
	if errors.As(err, &e) {
		return e.Code == ErrCodeBusy
	}
	return false
}

// Common error codes.
const (
	ErrCodeBusy          = "EXECUTION_IN_FLIGHT"
	ErrCodeEngineGone    = "ENGINE_GONE"
	ErrCodeProbeTimeout  = "PROBE_TIMEOUT"
	ErrCodeCanceled      = "CANCELED"
	ErrCodeCollectFailed = "COLLECT_FAILED"
)
