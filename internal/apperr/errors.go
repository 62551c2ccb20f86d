package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInternal         Code = "INTERNAL"
)

// AppError is an error that carries the caller-facing message and the form
// field it relates to.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, field, message string) *AppError {
	return &AppError{Code: code, Field: field, Message: message}
}

func Wrap(code Code, field, message string, cause error) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Cause: cause}
}

func Invalid(field, message string) *AppError {
	return New(CodeInvalidArgument, field, message)
}

func NotFound(field, message string) *AppError {
	return New(CodeNotFound, field, message)
}

func AlreadyExists(field, message string) *AppError {
	return New(CodeAlreadyExists, field, message)
}

func Unauthenticated(field, message string) *AppError {
	return New(CodeUnauthenticated, field, message)
}

func Internal(field string, cause error) *AppError {
	return Wrap(CodeInternal, field, "An error occurred", cause)
}

// As extracts an *AppError from err. Anything else is reported as internal.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("", err)
}

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
