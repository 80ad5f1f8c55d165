package schema

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/charlesng35/estatehub/internal/docstore"
)

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// castError reports a value that cannot be converted to the declared type.
type castError struct {
	Type  string
	Value any
}

func (e *castError) Error() string {
	return fmt.Sprintf("cast to %s failed for value %v", e.Type, e.Value)
}

// castValue converts value into the canonical Go representation of typ.
func castValue(typ Type, spec *FieldSpec, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch t := typ.(type) {
	case *ScalarType:
		out, err := castScalar(t.Tag, value)
		if err != nil {
			return nil, err
		}
		if s, ok := out.(string); ok && spec != nil {
			out = normalizeString(spec, s)
		}
		return out, nil
	case *SubdocumentType:
		doc, ok := toDocument(value)
		if !ok {
			return nil, &castError{Type: "Embedded", Value: value}
		}
		return castDocument(t.Schema, doc)
	case *ArrayType:
		items, ok := toSlice(value)
		if !ok {
			items = []any{value}
		}
		var elemSpec *FieldSpec
		if spec != nil {
			elemSpec = spec.Of
		}
		out := make([]any, len(items))
		for i, item := range items {
			casted, err := castValue(t.Elem, elemSpec, item)
			if err != nil {
				return nil, err
			}
			out[i] = casted
		}
		return out, nil
	default:
		return docstore.Normalize(value), nil
	}
}

// castDocument casts the declared fields of doc, drops undeclared keys and
// fills in defaults of missing fields.
func castDocument(s *Schema, doc bson.M) (bson.M, error) {
	out := make(bson.M, len(doc))
	for key, value := range doc {
		f, ok := s.fields[key]
		if !ok {
			continue
		}
		casted, err := castValue(f.Type, f.Spec, value)
		if err != nil {
			return nil, err
		}
		out[key] = casted
	}
	applyDefaults(s, out)
	return out, nil
}

func normalizeString(spec *FieldSpec, s string) string {
	if spec.Trim {
		s = strings.TrimSpace(s)
	}
	if spec.Lowercase {
		s = strings.ToLower(s)
	}
	if spec.Uppercase {
		s = strings.ToUpper(s)
	}
	return s
}

func castScalar(tag TypeTag, value any) (any, error) {
	fail := &castError{Type: string(tag), Value: value}

	switch tag {
	case String:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case primitive.ObjectID:
			return v.Hex(), nil
		case bool:
			return strconv.FormatBool(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
		if f, ok := number(value); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return nil, fail
	case Number:
		switch v := value.(type) {
		case bool:
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || math.IsNaN(f) {
				return nil, fail
			}
			return f, nil
		case primitive.Decimal128:
			f, err := strconv.ParseFloat(v.String(), 64)
			if err != nil {
				return nil, fail
			}
			return f, nil
		}
		if f, ok := number(value); ok {
			return f, nil
		}
		return nil, fail
	case Boolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
			return nil, fail
		}
		if f, ok := number(value); ok && (f == 0 || f == 1) {
			return f == 1, nil
		}
		return nil, fail
	case Date:
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Truncate(time.Millisecond), nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return v.UTC().Truncate(time.Millisecond), nil
		case primitive.DateTime:
			return v.Time().UTC(), nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t.UTC().Truncate(time.Millisecond), nil
				}
			}
			return nil, fail
		}
		if f, ok := number(value); ok {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		return nil, fail
	case ObjectID:
		switch v := value.(type) {
		case primitive.ObjectID:
			return v, nil
		case string:
			id, err := primitive.ObjectIDFromHex(strings.TrimSpace(v))
			if err != nil {
				return nil, fail
			}
			return id, nil
		case *Document:
			return v.ID(), nil
		}
		return nil, fail
	case Buffer:
		switch v := value.(type) {
		case primitive.Binary:
			return v, nil
		case []byte:
			return primitive.Binary{Data: append([]byte(nil), v...)}, nil
		case string:
			return primitive.Binary{Data: []byte(v)}, nil
		}
		return nil, fail
	case Decimal128:
		switch v := value.(type) {
		case primitive.Decimal128:
			return v, nil
		case string:
			d, err := primitive.ParseDecimal128(strings.TrimSpace(v))
			if err != nil {
				return nil, fail
			}
			return d, nil
		}
		if f, ok := number(value); ok {
			d, err := primitive.ParseDecimal128(strconv.FormatFloat(f, 'f', -1, 64))
			if err != nil {
				return nil, fail
			}
			return d, nil
		}
		return nil, fail
	case Map:
		doc, ok := toDocument(value)
		if !ok {
			return nil, fail
		}
		return doc, nil
	case Array:
		items, ok := toSlice(value)
		if !ok {
			return nil, fail
		}
		return items, nil
	default:
		return docstore.Normalize(value), nil
	}
}

func number(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	default:
		return 0, false
	}
}

func toDocument(value any) (bson.M, bool) {
	switch v := value.(type) {
	case bson.M, map[string]any, bson.D:
		doc, ok := docstore.Normalize(v).(bson.M)
		return doc, ok
	case *Document:
		return v.ToMap(), true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(bson.M, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = docstore.Normalize(iter.Value().Interface())
	}
	return out, true
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case bson.A:
		return []any(v), true
	case []byte, string:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
