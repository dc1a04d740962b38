// Package apierrors defines the gateway's error taxonomy and the JSON shape
// errors take on the HTTP boundary.
package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Stable error codes surfaced to clients.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeProviderError   = "PROVIDER_ERROR"
	CodeCredentialError = "CREDENTIAL_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// AppError is an error with an HTTP status and a stable code. Details, when
// set, carries structured context such as field-level validation paths or the
// upstream error body.
type AppError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *AppError) Error() string { return e.Message }

// New constructs an AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying the given details payload.
func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// From coerces any error into an AppError, defaulting to a 500.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
}

type errorBody struct {
	Error *AppError `json:"error"`
}

// Write encodes err as the gateway's JSON error body with its HTTP status.
func Write(w http.ResponseWriter, err error) {
	appErr := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: appErr})
}

// WriteStatus writes a bare AppError built from a status and message.
func WriteStatus(w http.ResponseWriter, status int, code, message string) {
	Write(w, New(status, code, message))
}
