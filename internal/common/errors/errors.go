// Package errors holds the JSON error body returned by the HTTP API.
package errors

import (
	"fmt"
	"net/http"
)

// Error is the body of every non-200 API response
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// New creates a new error with the given code and message
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new error with the given code and formatted message
func Newf(code int, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Error codes used by the API
const (
	CodeInternalError   = http.StatusInternalServerError
	CodeBadRequest      = http.StatusBadRequest
	CodeNotFound        = http.StatusNotFound
	CodePayloadTooLarge = http.StatusRequestEntityTooLarge
)
