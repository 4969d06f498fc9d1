package apierr

import (
	"errors"
	"net/http"
)

// FieldError is a single validation failure attached to an error response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a domain error with a fixed HTTP status. It is constructed at the
// point of detection and carried unmodified to the boundary.
type Error struct {
	Status  int
	Message string
	Errors  []FieldError
}

func (e *Error) Error() string { return e.Message }

func New(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func BadRequest(msg string) *Error   { return New(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(http.StatusForbidden, msg) }
func NotFound(msg string) *Error     { return New(http.StatusNotFound, msg) }
func Conflict(msg string) *Error     { return New(http.StatusConflict, msg) }
func Internal(msg string) *Error     { return New(http.StatusInternalServerError, msg) }

// Validation builds a 422 carrying field-level errors.
func Validation(fields []FieldError) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Message: "Validation failed", Errors: fields}
}

// From extracts an *Error from err, or nil if err is not a domain error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
