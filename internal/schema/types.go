package schema

import (
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TypeTag names a primitive field type.
type TypeTag string

const (
	String     TypeTag = "String"
	Number     TypeTag = "Number"
	Boolean    TypeTag = "Boolean"
	Date       TypeTag = "Date"
	ObjectID   TypeTag = "ObjectId"
	Buffer     TypeTag = "Buffer"
	Mixed      TypeTag = "Mixed"
	Decimal128 TypeTag = "Decimal128"
	Map        TypeTag = "Map"
	Array      TypeTag = "Array"
)

// Type is the concrete storage type of a field.
type Type interface {
	TypeName() string
}

// ScalarType is a primitive storage type backed by a fixed Go type.
type ScalarType struct {
	Tag    TypeTag
	GoType reflect.Type
}

func (t *ScalarType) TypeName() string { return string(t.Tag) }

// SubdocumentType embeds a compiled schema.
type SubdocumentType struct {
	Schema *Schema
}

func (t *SubdocumentType) TypeName() string { return "Embedded" }

// ArrayType repeats an element type.
type ArrayType struct {
	Elem Type
}

func (t *ArrayType) TypeName() string {
	if t.Elem == nil {
		return "Array"
	}
	return "[" + t.Elem.TypeName() + "]"
}

// ExtensionType carries a tag the mapper does not know. Values are stored as given.
type ExtensionType struct {
	Tag TypeTag
}

func (t *ExtensionType) TypeName() string { return string(t.Tag) }

var scalarTypes = map[string]*ScalarType{
	"string":     {Tag: String, GoType: reflect.TypeOf("")},
	"number":     {Tag: Number, GoType: reflect.TypeOf(float64(0))},
	"boolean":    {Tag: Boolean, GoType: reflect.TypeOf(false)},
	"date":       {Tag: Date, GoType: reflect.TypeOf(time.Time{})},
	"objectid":   {Tag: ObjectID, GoType: reflect.TypeOf(primitive.ObjectID{})},
	"buffer":     {Tag: Buffer, GoType: reflect.TypeOf(primitive.Binary{})},
	"mixed":      {Tag: Mixed, GoType: reflect.TypeOf((*any)(nil)).Elem()},
	"decimal128": {Tag: Decimal128, GoType: reflect.TypeOf(primitive.Decimal128{})},
	"map":        {Tag: Map, GoType: reflect.TypeOf(bson.M{})},
	"array":      {Tag: Array, GoType: reflect.TypeOf([]any{})},
}

// Scalar returns the fixed mapping for tag, or nil when tag is not a primitive.
func Scalar(tag TypeTag) *ScalarType {
	return scalarTypes[strings.ToLower(strings.TrimSpace(string(tag)))]
}

// SubschemaCompiler builds the schema of a nested object. It is injected into
// Resolve so the mapper does not depend on the compiler.
type SubschemaCompiler func(fields map[string]*FieldSpec) (*Schema, error)

// Resolve maps a field specification onto its concrete type. Nested objects
// become subdocuments, single element arrays become ArrayType around the
// resolved element, known tags map through the primitive table and unknown
// tags pass through as ExtensionType. A field without any type yields nil.
func Resolve(spec *FieldSpec, sub SubschemaCompiler) (Type, error) {
	if spec == nil {
		return nil, nil
	}

	switch {
	case spec.Fields != nil:
		if sub == nil {
			return nil, errMissingSubcompiler
		}
		nested, err := sub(spec.Fields)
		if err != nil {
			return nil, err
		}
		return &SubdocumentType{Schema: nested}, nil
	case spec.Of != nil:
		elem, err := Resolve(spec.Of, sub)
		if err != nil {
			return nil, err
		}
		return &ArrayType{Elem: elem}, nil
	case strings.TrimSpace(string(spec.Type)) == "":
		return nil, nil
	}

	if scalar := Scalar(spec.Type); scalar != nil {
		return scalar, nil
	}
	return &ExtensionType{Tag: spec.Type}, nil
}

// inferType picks a scalar type from a default value when the field is untyped.
func inferType(value any) Type {
	if fn, ok := value.(func() any); ok {
		value = fn()
	}
	switch value.(type) {
	case string:
		return Scalar(String)
	case bool:
		return Scalar(Boolean)
	case int, int32, int64, float32, float64:
		return Scalar(Number)
	case time.Time, primitive.DateTime:
		return Scalar(Date)
	case primitive.ObjectID:
		return Scalar(ObjectID)
	case primitive.Decimal128:
		return Scalar(Decimal128)
	default:
		return Scalar(Mixed)
	}
}
