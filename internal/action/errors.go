package action

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain-specific errors for the action package.
var (
	// ErrTimeout is returned when an action does not finish within the
	// requested wait.
	ErrTimeout = errors.New("action: timed out waiting for completion")

	// ErrCancelled marks a cooperative stop honoured by the body.
	ErrCancelled = errors.New("action: cancelled")

	// ErrTerminated marks a forced termination.
	ErrTerminated = errors.New("action: terminated")

	// ErrNotPending is returned when starting an action that already left
	// the pending state.
	ErrNotPending = errors.New("action: not pending")

	// ErrPoolFull is returned when the pool is at capacity and every
	// retained action is still running.
	ErrPoolFull = errors.New("action: pool full of running actions")

	// ErrUnknownAction is returned when no definition is registered under
	// the requested name.
	ErrUnknownAction = errors.New("action: unknown action")

	// ErrDuplicateAction is returned when registering a name twice.
	ErrDuplicateAction = errors.New("action: duplicate action")

	// ErrInvalidDefinition is returned for a definition without a name or body.
	ErrInvalidDefinition = errors.New("action: invalid definition")
)

// ProtocolError is an error that maps onto an HTTP status. A body that
// returns one while its caller is still waiting hands the error back to the
// caller instead of recording it.
type ProtocolError interface {
	error
	StatusCode() int
}

// HTTPError is the stock ProtocolError.
type HTTPError struct {
	Code    int
	Message string
}

// Error implements error.
func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// StatusCode implements ProtocolError.
func (e *HTTPError) StatusCode() int {
	return e.Code
}

// Abort returns an HTTPError for code with an optional message.
//
// Example:
//
//	if !found {
//	    return nil, action.Abort(http.StatusNotFound, "no peak above threshold")
//	}
func Abort(code int, message string) error {
	return &HTTPError{Code: code, Message: message}
}

// AsProtocolError reports whether err (or anything it wraps) is a
// ProtocolError.
func AsProtocolError(err error) (ProtocolError, bool) {
	var pe ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
