package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charlesng35/estatehub/internal/docstore"
	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

// ErrNotFound is returned by single document reads that match nothing.
var ErrNotFound = docstore.ErrNotFound

var errMissingSubcompiler = errors.New("schema: nested object requires a subschema compiler")

// Validation kinds reported in FieldError.Kind.
const (
	KindRequired    = "required"
	KindCast        = "cast"
	KindMinLength   = "minlength"
	KindMaxLength   = "maxlength"
	KindMin         = "min"
	KindMax         = "max"
	KindEnum        = "enum"
	KindRegexp      = "regexp"
	KindFormat      = "format"
	KindUserDefined = "user defined"
	KindUnique      = "unique"
)

// FieldError is one offending path of a failed validation.
type FieldError struct {
	Path    string
	Message string
	Kind    string
	Value   any
}

// ValidationError is raised when a document violates its schema. It holds
// every violation, keyed by dotted path.
type ValidationError struct {
	Model  string
	Errors map[string]*FieldError
}

func newValidationError(model string) *ValidationError {
	return &ValidationError{Model: model, Errors: make(map[string]*FieldError)}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, path := range e.Paths() {
		parts = append(parts, fmt.Sprintf("%s: %s", path, e.Errors[path].Message))
	}
	return fmt.Sprintf("%s validation failed: %s", e.Model, strings.Join(parts, ", "))
}

// Paths lists the offending paths in order.
func (e *ValidationError) Paths() []string {
	paths := make([]string, 0, len(e.Errors))
	for path := range e.Errors {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (e *ValidationError) add(fe *FieldError) {
	if _, exists := e.Errors[fe.Path]; exists {
		return
	}
	e.Errors[fe.Path] = fe
}

func (e *ValidationError) empty() bool {
	return len(e.Errors) == 0
}

// AppError converts the validation error into the shared VALIDATION_ERROR
// kind with one detail per offending path.
func (e *ValidationError) AppError() *apperrors.AppError {
	details := make([]apperrors.FieldDetail, 0, len(e.Errors))
	for _, path := range e.Paths() {
		fe := e.Errors[path]
		details = append(details, apperrors.FieldDetail{
			Field:   fe.Path,
			Message: fe.Message,
			Kind:    fe.Kind,
			Value:   fe.Value,
		})
	}
	return apperrors.NewValidation("Validation failed", details).WithInternal(e)
}

// TranslateError maps errors raised by models onto the shared taxonomy.
// AppErrors raised by hooks pass through unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.AppError()
	}

	var dup *docstore.DuplicateKeyError
	if errors.As(err, &dup) {
		message := "Duplicate value violates a unique index"
		if len(dup.Fields) > 0 {
			message = "Duplicate value for " + strings.Join(dup.Fields, ", ")
		}
		details := make([]apperrors.FieldDetail, 0, len(dup.Fields))
		for _, field := range dup.Fields {
			details = append(details, apperrors.FieldDetail{
				Field:   field,
				Message: fmt.Sprintf("%s must be unique", field),
				Kind:    KindUnique,
			})
		}
		return apperrors.NewConflict(message).WithDetails(details...).WithInternal(err)
	}

	if errors.Is(err, ErrNotFound) {
		return apperrors.ErrNotFound.WithInternal(err)
	}
	return apperrors.Wrap(err, "Internal server error")
}
