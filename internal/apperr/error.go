// Package apperr defines the client-facing error value carried through the
// request pipeline and the terminal handler that renders it.
//
// Every failure raised by a pipeline stage or a route handler converges on
// [Handler]. Only *Error values are considered operational: their status
// code, status string and message are shown to the client verbatim. Any other
// error is logged and rendered as a generic 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Status strings used in rendered error bodies.
const (
	StatusFail  = "fail"
	StatusError = "error"
)

// Messages fixed by the pipeline.
const (
	MsgUndefinedRoute  = "undefined route"
	MsgTooManyRequests = "Too Many Request from this IP, please try again in an hour"
	MsgEntityTooLarge  = "request entity too large"
	MsgInvalidJSON     = "invalid JSON request body"
	MsgInternal        = "something went very wrong"
)

// Error is an operational HTTP error: it knows which status code, status
// string and message the client should see.
type Error struct {
	StatusCode  int
	Status      string
	Message     string
	Operational bool

	// cause is kept for logs only, never rendered in production
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.StatusCode, e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an operational error. An empty status is derived from the code:
// "fail" for 4xx and "error" for everything else.
func New(statusCode int, status, message string) *Error {
	if status == "" {
		status = statusFor(statusCode)
	}
	return &Error{
		StatusCode:  statusCode,
		Status:      status,
		Message:     message,
		Operational: true,
	}
}

// Wrap is New with an underlying cause attached for logging.
func Wrap(err error, statusCode int, message string) *Error {
	e := New(statusCode, "", message)
	e.cause = err
	return e
}

func NotFound() *Error { return New(http.StatusNotFound, StatusFail, MsgUndefinedRoute) }

func TooManyRequests(msg string) *Error {
	if msg == "" {
		msg = MsgTooManyRequests
	}
	return New(http.StatusTooManyRequests, StatusFail, msg)
}

func PayloadTooLarge() *Error {
	return New(http.StatusRequestEntityTooLarge, StatusFail, MsgEntityTooLarge)
}

func BadRequest(msg string) *Error { return New(http.StatusBadRequest, StatusFail, msg) }

// As extracts an *Error from anywhere in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

func statusFor(code int) string {
	if code >= 400 && code < 500 {
		return StatusFail
	}
	return StatusError
}
