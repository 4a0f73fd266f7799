package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code. Clones keep matching their origin.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration rule violations. All are recoverable and shown to the user as-is.
var (
	ErrIneligibleArea      = New("INELIGIBLE_AREA", http.StatusUnprocessableEntity, "student course is not eligible for this area")
	ErrMaxAreasExceeded    = New("MAX_AREAS_EXCEEDED", http.StatusUnprocessableEntity, "maximum number of areas reached")
	ErrEmptySelection      = New("EMPTY_SELECTION", http.StatusBadRequest, "select at least one area")
	ErrRegistrationNotOpen = New("REGISTRATION_NOT_OPEN", http.StatusConflict, "registration has not opened yet")
	ErrRegistrationClosed  = New("REGISTRATION_CLOSED", http.StatusConflict, "registration is already closed")
	ErrCallInactive        = New("CALL_INACTIVE", http.StatusConflict, "call for registration is not active")
	ErrFinalized           = New("FINALIZED", http.StatusConflict, "registration already verified, no further changes are possible")
	ErrUnresolvableCall    = New("UNRESOLVABLE_CALL", http.StatusUnprocessableEntity, "registration references an unknown call")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Details = nil
	return &clone
}

// WithDetails returns a copy of err carrying the given key/value details.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = make(map[string]interface{}, len(details))
	for k, v := range details {
		clone.Details[k] = v
	}
	return &clone
}
