package schema

import "regexp"

// FieldSpec declares one field. Exactly one of Type, Fields (nested object)
// or Of (single element array) describes the shape.
type FieldSpec struct {
	Type   TypeTag
	Fields map[string]*FieldSpec
	Of     *FieldSpec

	Required        bool
	RequiredMessage string

	Unique bool
	Sparse bool
	Index  bool
	// Hidden fields are left out of query results unless selected with "+path".
	Hidden bool

	Trim      bool
	Lowercase bool
	Uppercase bool

	MinLength        *int
	MinLengthMessage string
	MaxLength        *int
	MaxLengthMessage string

	Min        *float64
	MinMessage string
	Max        *float64
	MaxMessage string

	Match        *regexp.Regexp
	MatchMessage string

	Enum        []string
	EnumMessage string

	// Format is a go-playground/validator tag such as "email" or "url".
	Format        string
	FormatMessage string

	// Default is either a value or a func() any evaluated per document.
	Default any

	Validate        func(value any) bool
	ValidateMessage string
}

// Int returns a pointer to n, for length bounds.
func Int(n int) *int { return &n }

// Float returns a pointer to f, for range bounds.
func Float(f float64) *float64 { return &f }

// Field is shorthand for a typed leaf.
func Field(tag TypeTag) *FieldSpec { return &FieldSpec{Type: tag} }

// Nested is shorthand for a subdocument.
func Nested(fields map[string]*FieldSpec) *FieldSpec { return &FieldSpec{Fields: fields} }

// ArrayOf is shorthand for a repeated element.
func ArrayOf(elem *FieldSpec) *FieldSpec { return &FieldSpec{Of: elem} }

func (f *FieldSpec) defaultValue() (any, bool) {
	if f == nil || f.Default == nil {
		return nil, false
	}
	if fn, ok := f.Default.(func() any); ok {
		return fn(), true
	}
	return f.Default, true
}
