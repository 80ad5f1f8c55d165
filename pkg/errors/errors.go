package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error kinds shared by the data layer and its callers.
const (
	CodeInvalidModelName       = "INVALID_MODEL_NAME"
	CodeInvalidConfigStructure = "INVALID_CONFIG_STRUCTURE"
	CodeMissingFieldsObject    = "MISSING_FIELDS_OBJECT"
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeRateLimit              = "RATE_LIMIT_EXCEEDED"
	CodeUnprocessableEntity    = "UNPROCESSABLE_ENTITY"
	CodeInternalServer         = "INTERNAL_SERVER_ERROR"
	CodeInvalidToken           = "INVALID_TOKEN"
)

// FieldDetail describes one offending field of a failed operation.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Value   any    `json:"value,omitempty"`
}

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	StatusCode int           `json:"-"`
	Details    []FieldDetail `json:"details,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Internal   error         `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is reports whether target is an AppError of the same kind.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := e.clone()
	cpy.Internal = err
	return cpy
}

// WithMessage returns a copy of the AppError carrying a different message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := e.clone()
	cpy.Message = message
	return cpy
}

// WithDetails returns a copy of the AppError with field level details attached.
func (e *AppError) WithDetails(details ...FieldDetail) *AppError {
	if e == nil {
		return nil
	}

	cpy := e.clone()
	cpy.Details = append(append([]FieldDetail(nil), e.Details...), details...)
	return cpy
}

func (e *AppError) clone() *AppError {
	cpy := *e
	cpy.Timestamp = now()
	return &cpy
}

var now = func() time.Time { return time.Now().UTC() }

// Common errors exposed to the rest of the application.
var (
	ErrInvalidModelName = &AppError{
		Code:       CodeInvalidModelName,
		Message:    "Model name must be a non-empty string",
		StatusCode: http.StatusInternalServerError,
	}

	ErrInvalidConfigStructure = &AppError{
		Code:       CodeInvalidConfigStructure,
		Message:    "Model configuration must be an object",
		StatusCode: http.StatusInternalServerError,
	}

	ErrMissingFieldsObject = &AppError{
		Code:       CodeMissingFieldsObject,
		Message:    "Model configuration must define fields",
		StatusCode: http.StatusInternalServerError,
	}

	ErrValidation = &AppError{
		Code:       CodeValidation,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnauthorized = &AppError{
		Code:       CodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       CodeForbidden,
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       CodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       CodeConflict,
		Message:    "Resource conflict",
		StatusCode: http.StatusConflict,
	}

	ErrRateLimit = &AppError{
		Code:       CodeRateLimit,
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrUnprocessableEntity = &AppError{
		Code:       CodeUnprocessableEntity,
		Message:    "Request could not be processed",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInvalidToken = &AppError{
		Code:       CodeInvalidToken,
		Message:    "Invalid or expired token",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       CodeInternalServer,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Timestamp:  now(),
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       CodeInternalServer,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Timestamp:  now(),
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewValidation builds a VALIDATION_ERROR carrying one detail per offending field.
func NewValidation(message string, details []FieldDetail) *AppError {
	err := ErrValidation.WithDetails(details...)
	if message != "" {
		err.Message = message
	}
	return err
}

// NewConflict wraps a conflict with a specific message.
func NewConflict(message string) *AppError {
	return ErrConflict.WithMessage(message)
}

// NewNotFound wraps a missing resource with a specific message.
func NewNotFound(message string) *AppError {
	return ErrNotFound.WithMessage(message)
}

// CodeOf returns the kind of err, or the empty string when err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}
	return ""
}
