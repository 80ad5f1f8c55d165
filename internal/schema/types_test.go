package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestResolvePrimitiveTable(t *testing.T) {
	cases := map[TypeTag]reflect.Type{
		String:     reflect.TypeOf(""),
		Number:     reflect.TypeOf(float64(0)),
		Boolean:    reflect.TypeOf(false),
		Date:       reflect.TypeOf(time.Time{}),
		ObjectID:   reflect.TypeOf(primitive.ObjectID{}),
		Buffer:     reflect.TypeOf(primitive.Binary{}),
		Decimal128: reflect.TypeOf(primitive.Decimal128{}),
		Array:      reflect.TypeOf([]any{}),
	}
	for tag, goType := range cases {
		typ, err := Resolve(&FieldSpec{Type: tag}, nil)
		require.NoError(t, err)
		scalar, ok := typ.(*ScalarType)
		require.Truef(t, ok, "tag %s", tag)
		require.Equal(t, tag, scalar.Tag)
		require.Equal(t, goType, scalar.GoType)
	}

	mixed, err := Resolve(&FieldSpec{Type: Mixed}, nil)
	require.NoError(t, err)
	require.Equal(t, "Mixed", mixed.TypeName())

	lower, err := Resolve(&FieldSpec{Type: "string"}, nil)
	require.NoError(t, err)
	require.Same(t, Scalar(String), lower)
}

func TestResolveArraysWrapElementMapping(t *testing.T) {
	typ, err := Resolve(ArrayOf(Field(Date)), nil)
	require.NoError(t, err)
	arr, ok := typ.(*ArrayType)
	require.True(t, ok)
	require.Same(t, Scalar(Date), arr.Elem)
	require.Equal(t, "[Date]", arr.TypeName())

	nested, err := Resolve(ArrayOf(ArrayOf(Field(Number))), nil)
	require.NoError(t, err)
	outer := nested.(*ArrayType)
	inner, ok := outer.Elem.(*ArrayType)
	require.True(t, ok)
	require.Same(t, Scalar(Number), inner.Elem)
}

func TestResolveNestedObjectUsesSubcompiler(t *testing.T) {
	var called map[string]*FieldSpec
	sub := func(fields map[string]*FieldSpec) (*Schema, error) {
		called = fields
		return buildSchema(fields, "")
	}

	spec := Nested(map[string]*FieldSpec{"city": Field(String), "zip": Field(String)})
	typ, err := Resolve(spec, sub)
	require.NoError(t, err)
	require.Equal(t, spec.Fields, called)

	doc, ok := typ.(*SubdocumentType)
	require.True(t, ok)
	city, ok := doc.Schema.Field("city")
	require.True(t, ok)
	require.Same(t, Scalar(String), city.Type)

	elems, err := Resolve(ArrayOf(spec), sub)
	require.NoError(t, err)
	_, ok = elems.(*ArrayType).Elem.(*SubdocumentType)
	require.True(t, ok)

	_, err = Resolve(spec, nil)
	require.ErrorIs(t, err, errMissingSubcompiler)
}

func TestResolveUnknownAndMissingTypes(t *testing.T) {
	typ, err := Resolve(&FieldSpec{Type: "GeoPoint"}, nil)
	require.NoError(t, err)
	ext, ok := typ.(*ExtensionType)
	require.True(t, ok)
	require.Equal(t, TypeTag("GeoPoint"), ext.Tag)

	typ, err = Resolve(&FieldSpec{}, nil)
	require.NoError(t, err)
	require.Nil(t, typ)

	typ, err = Resolve(nil, nil)
	require.NoError(t, err)
	require.Nil(t, typ)
}
