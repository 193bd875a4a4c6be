package toolcall

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a call failure for downstream consumers.
type ErrorKind string

const (
	// ErrorKindInvalidRequest marks malformed batch input.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	// ErrorKindNotFound marks an unknown record id lookup.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindSchemaValidation marks arguments that do not match the tool's declared schema.
	ErrorKindSchemaValidation ErrorKind = "schema_validation_failed"
	// ErrorKindUnknownTool marks a tool name absent from the registry.
	ErrorKindUnknownTool ErrorKind = "unknown_tool"
	// ErrorKindUserDenied marks an approval prompt answered with deny.
	ErrorKindUserDenied ErrorKind = "user_denied"
	// ErrorKindExecutorFailure marks a tool implementation that returned an error.
	ErrorKindExecutorFailure ErrorKind = "executor_failure"
	// ErrorKindCancelled marks an explicit or abort-triggered cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"
)

var (
	// ErrInvalidRequest is returned when batch construction input is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a record id is unknown to the batch.
	ErrNotFound = errors.New("record not found")

	// ErrSchemaValidation is returned when arguments fail schema validation.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrUnknownTool is returned when a tool name is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrUserDenied is returned when the user denies an approval prompt.
	ErrUserDenied = errors.New("user denied")

	// ErrExecutorFailure is returned when a tool implementation fails.
	ErrExecutorFailure = errors.New("executor failure")

	// ErrCancelled is returned when a call is cancelled before or during execution.
	ErrCancelled = errors.New("cancelled")
)

// CallError carries a classified failure for a single call record.
type CallError struct {
	Kind    ErrorKind `json:"kind"`
	Tool    string    `json:"tool,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewError builds a CallError without an underlying cause.
func NewError(kind ErrorKind, tool, message string) *CallError {
	return &CallError{Kind: kind, Tool: tool, Message: message}
}

// WrapError builds a CallError around an underlying cause.
func WrapError(kind ErrorKind, tool string, err error) *CallError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &CallError{Kind: kind, Tool: tool, Message: msg, Err: err}
}

func (e *CallError) Error() string {
	if e == nil {
		return "call error"
	}
	if e.Tool != "" {
		return fmt.Sprintf("%s: tool %s: %s", e.Kind, e.Tool, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind, so
// errors.Is(err, toolcall.ErrUserDenied) works across wrapping layers.
func (e *CallError) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == sentinelFor(e.Kind)
}

// TerminalState maps the error kind to the record state it produces.
func (e *CallError) TerminalState() State {
	switch e.Kind {
	case ErrorKindUserDenied, ErrorKindCancelled:
		return StateCancelled
	default:
		return StateError
	}
}

// KindOf extracts the ErrorKind from err, walking wrapped causes. Unclassified
// errors report ErrorKindExecutorFailure since they can only originate in a
// tool implementation.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return ErrorKindInvalidRequest
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrSchemaValidation):
		return ErrorKindSchemaValidation
	case errors.Is(err, ErrUnknownTool):
		return ErrorKindUnknownTool
	case errors.Is(err, ErrUserDenied):
		return ErrorKindUserDenied
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	default:
		return ErrorKindExecutorFailure
	}
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case ErrorKindInvalidRequest:
		return ErrInvalidRequest
	case ErrorKindNotFound:
		return ErrNotFound
	case ErrorKindSchemaValidation:
		return ErrSchemaValidation
	case ErrorKindUnknownTool:
		return ErrUnknownTool
	case ErrorKindUserDenied:
		return ErrUserDenied
	case ErrorKindExecutorFailure:
		return ErrExecutorFailure
	case ErrorKindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}
