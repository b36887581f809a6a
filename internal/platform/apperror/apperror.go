// Package apperror maps domain failures onto HTTP responses with a stable JSON body.
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with an HTTP status and a client-safe code and message.
// Err is the cause; it is logged by callers and never serialised.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New returns an AppError without a cause.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// WithCause returns a copy of e carrying err.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// FromError returns err as an AppError, or ErrInternal wrapping it.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

var (
	ErrBadRequest = New(http.StatusBadRequest, "BAD_REQUEST", "The request body is invalid.")
	// ErrUnauthorized is the single body every authentication or tenancy failure produces.
	ErrUnauthorized    = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required.")
	ErrForbidden       = New(http.StatusForbidden, "FORBIDDEN", "Insufficient permissions.")
	ErrTooManyRequests = New(http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many attempts. Try again later.")
	ErrNotFound        = New(http.StatusNotFound, "NOT_FOUND", "Resource not found.")
	ErrInternal        = New(http.StatusInternalServerError, "INTERNAL", "Internal server error.")
	ErrUnavailable     = New(http.StatusServiceUnavailable, "UNAVAILABLE", "Service unavailable.")
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if appErr.HTTPStatus == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: appErr.Code, Message: appErr.Message})
}
