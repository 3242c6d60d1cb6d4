package apierr

import (
	"fmt"
	"net/http"
)

// Request-level error codes. Service errors carry their own domain codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidID      = "invalid_id"
	CodeInvalidUpload  = "invalid_upload"
	CodeFileTooLarge   = "file_too_large"
)

// Error is a failure the HTTP layer detected before reaching a service, with the status
// and code it should be reported under.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	if status == 0 {
		status = http.StatusBadRequest
	}
	return &Error{Status: status, Code: code, Err: err}
}

// BadRequest builds a 400 with a formatted message.
func BadRequest(code, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf(format, args...))
}

// InvalidRequest wraps a body or query decoding failure.
func InvalidRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, err)
}

// TooLarge reports an upload part over the size limit.
func TooLarge(name string, limit int64) *Error {
	return New(http.StatusRequestEntityTooLarge, CodeFileTooLarge, fmt.Errorf("%s exceeds %d bytes", name, limit))
}
