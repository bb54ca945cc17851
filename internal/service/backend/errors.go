package backend

import "fmt"

type ErrorCode string

const (
	ErrorTransport      ErrorCode = "TRANSPORT"
	ErrorUpstreamStatus ErrorCode = "UPSTREAM_STATUS"
	ErrorInvalidPayload ErrorCode = "INVALID_PAYLOAD"
)

// Error describes a failed exchange with the chat backend.
type Error struct {
	Code   ErrorCode
	Reason string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("backend: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("backend: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
