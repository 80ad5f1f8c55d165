package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/charlesng35/estatehub/pkg/validator"
)

// validateDocument checks every path that needs validation and aggregates
// the violations. New documents check all paths, existing ones only modified paths.
func validateDocument(d *Document) *ValidationError {
	verr := newValidationError(d.model.name)
	for path, fe := range d.castErrors {
		verr.Errors[path] = fe
	}
	validateSchema(d, d.model.schema, d.data, "", verr)
	if verr.empty() {
		return nil
	}
	return verr
}

func validateSchema(d *Document, s *Schema, data bson.M, prefix string, verr *ValidationError) {
	for _, f := range s.Fields() {
		path := prefix + f.Name
		if _, failed := verr.Errors[path]; failed {
			continue
		}
		if !d.isNew && !d.IsModified(path) {
			continue
		}
		value, present := data[f.Name]
		validateValue(d, f.Type, f.Spec, path, value, present, verr)
	}
}

func validateValue(d *Document, typ Type, spec *FieldSpec, path string, value any, present bool, verr *ValidationError) {
	if fe := checkValue(spec, path, value, present); fe != nil {
		verr.add(fe)
		return
	}

	switch t := typ.(type) {
	case *SubdocumentType:
		sub, _ := value.(bson.M)
		validateSchema(d, t.Schema, sub, path+".", verr)
	case *ArrayType:
		items, _ := value.([]any)
		var elemSpec *FieldSpec
		if spec != nil {
			elemSpec = spec.Of
		}
		for i, item := range items {
			validateValue(d, t.Elem, elemSpec, path+"."+strconv.Itoa(i), item, true, verr)
		}
	}
}

func checkValue(spec *FieldSpec, path string, value any, present bool) *FieldError {
	if spec == nil {
		return nil
	}

	if spec.Required && (!present || value == nil || value == "") {
		return newFieldError(KindRequired, spec.RequiredMessage, "Path `{PATH}` is required.", path, value, nil)
	}
	if value == nil {
		return nil
	}

	if s, ok := value.(string); ok {
		length := utf8.RuneCountInString(s)
		if spec.MinLength != nil && length < *spec.MinLength {
			return newFieldError(KindMinLength, spec.MinLengthMessage,
				"Path `{PATH}` (`{VALUE}`) is shorter than the minimum allowed length ({MINLENGTH}).",
				path, value, map[string]string{"{MINLENGTH}": strconv.Itoa(*spec.MinLength)})
		}
		if spec.MaxLength != nil && length > *spec.MaxLength {
			return newFieldError(KindMaxLength, spec.MaxLengthMessage,
				"Path `{PATH}` (`{VALUE}`) is longer than the maximum allowed length ({MAXLENGTH}).",
				path, value, map[string]string{"{MAXLENGTH}": strconv.Itoa(*spec.MaxLength)})
		}
		if spec.Match != nil && !spec.Match.MatchString(s) {
			return newFieldError(KindRegexp, spec.MatchMessage, "Path `{PATH}` is invalid ({VALUE}).", path, value, nil)
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return newFieldError(KindEnum, spec.EnumMessage, "`{VALUE}` is not a valid enum value for path `{PATH}`.", path, value, nil)
		}
		if spec.Format != "" && validator.ValidateVar(s, spec.Format) != nil {
			return newFieldError(KindFormat, spec.FormatMessage, "Path `{PATH}` is not a valid "+spec.Format+".", path, value, nil)
		}
	}

	if f, ok := numericValue(value); ok {
		if spec.Min != nil && f < *spec.Min {
			return newFieldError(KindMin, spec.MinMessage,
				"Path `{PATH}` ({VALUE}) is less than minimum allowed value ({MIN}).",
				path, value, map[string]string{"{MIN}": formatFloat(*spec.Min)})
		}
		if spec.Max != nil && f > *spec.Max {
			return newFieldError(KindMax, spec.MaxMessage,
				"Path `{PATH}` ({VALUE}) is more than maximum allowed value ({MAX}).",
				path, value, map[string]string{"{MAX}": formatFloat(*spec.Max)})
		}
	}

	if spec.Validate != nil && !spec.Validate(value) {
		return newFieldError(KindUserDefined, spec.ValidateMessage,
			"Validator failed for path `{PATH}` with value `{VALUE}`", path, value, nil)
	}
	return nil
}

func newCastError(path string, err *castError) *FieldError {
	return &FieldError{
		Path:    path,
		Kind:    KindCast,
		Value:   err.Value,
		Message: fmt.Sprintf("Cast to %s failed for value \"%v\" at path \"%s\"", err.Type, err.Value, path),
	}
}

func newFieldError(kind, custom, fallback, path string, value any, extra map[string]string) *FieldError {
	message := custom
	if message == "" {
		message = fallback
	}
	replacements := []string{"{PATH}", path, "{VALUE}", fmt.Sprint(value)}
	for key, val := range extra {
		replacements = append(replacements, key, val)
	}
	return &FieldError{
		Path:    path,
		Kind:    kind,
		Value:   value,
		Message: strings.NewReplacer(replacements...).Replace(message),
	}
}

func numericValue(value any) (float64, bool) {
	if d, ok := value.(primitive.Decimal128); ok {
		f, err := strconv.ParseFloat(d.String(), 64)
		return f, err == nil
	}
	return number(value)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
