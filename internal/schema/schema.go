package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charlesng35/estatehub/internal/docstore"
	"github.com/charlesng35/estatehub/pkg/validator"
)

const (
	createdAtField = "createdAt"
	updatedAtField = "updatedAt"
)

// SchemaField is one compiled field.
type SchemaField struct {
	Name string
	Path string
	Spec *FieldSpec
	Type Type
}

// Schema is the compiled field tree of a model or subdocument.
type Schema struct {
	fields map[string]*SchemaField
	names  []string
}

func buildSchema(fields map[string]*FieldSpec, prefix string) (*Schema, error) {
	s := &Schema{fields: make(map[string]*SchemaField, len(fields))}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := prefix + name
		if err := checkFieldName(name); err != nil {
			return nil, fmt.Errorf("field %q: %w", path, err)
		}
		spec := fields[name]
		if spec == nil {
			return nil, fmt.Errorf("field %q: specification is nil", path)
		}

		typ, err := Resolve(spec, func(nested map[string]*FieldSpec) (*Schema, error) {
			return buildSchema(nested, path+".")
		})
		if err != nil {
			return nil, err
		}
		if typ == nil {
			typ = inferType(spec.Default)
		}
		if err := checkConstraints(path, spec); err != nil {
			return nil, err
		}

		s.fields[name] = &SchemaField{Name: name, Path: path, Spec: spec, Type: typ}
		s.names = append(s.names, name)
	}
	return s, nil
}

func (s *Schema) addImplicit(name string, tag TypeTag) {
	if _, exists := s.fields[name]; exists {
		return
	}
	s.fields[name] = &SchemaField{Name: name, Path: name, Spec: &FieldSpec{Type: tag}, Type: Scalar(tag)}
	s.names = append(s.names, name)
	sort.Strings(s.names)
}

func checkFieldName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("name is empty")
	case strings.Contains(name, "."):
		return fmt.Errorf("name must not contain '.'")
	case strings.HasPrefix(name, "$"):
		return fmt.Errorf("name must not start with '$'")
	}
	return nil
}

func checkConstraints(path string, spec *FieldSpec) error {
	if spec.MinLength != nil && spec.MaxLength != nil && *spec.MinLength > *spec.MaxLength {
		return fmt.Errorf("field %q: minLength exceeds maxLength", path)
	}
	if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
		return fmt.Errorf("field %q: min exceeds max", path)
	}
	if spec.Lowercase && spec.Uppercase {
		return fmt.Errorf("field %q: lowercase and uppercase are exclusive", path)
	}
	if spec.Format != "" && !validator.KnownTag(spec.Format) {
		return fmt.Errorf("field %q: unknown format %q", path, spec.Format)
	}
	if spec.Default != nil && len(spec.Enum) > 0 {
		if value, ok := spec.defaultValue(); ok {
			if str, isString := value.(string); isString && !contains(spec.Enum, str) {
				return fmt.Errorf("field %q: default %q is not an enum value", path, str)
			}
		}
	}
	return nil
}

// Field returns the top level field called name.
func (s *Schema) Field(name string) (*SchemaField, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields lists the fields in name order.
func (s *Schema) Fields() []*SchemaField {
	out := make([]*SchemaField, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.fields[name])
	}
	return out
}

// Path resolves a dotted path, descending through subdocuments and array
// elements. Numeric segments address array elements.
func (s *Schema) Path(path string) (Type, *FieldSpec, bool) {
	segments := strings.Split(path, ".")
	current := s
	for i := 0; i < len(segments); i++ {
		f, ok := current.fields[segments[i]]
		if !ok {
			return nil, nil, false
		}
		typ, spec := f.Type, f.Spec
		for {
			if i == len(segments)-1 {
				return typ, spec, true
			}
			if arr, isArray := typ.(*ArrayType); isArray {
				if _, err := strconv.Atoi(segments[i+1]); err == nil {
					i++
					typ, spec = arr.Elem, spec.Of
					continue
				}
				typ, spec = arr.Elem, spec.Of
			}
			break
		}
		sub, isSub := typ.(*SubdocumentType)
		if !isSub {
			return nil, nil, false
		}
		current = sub.Schema
	}
	return nil, nil, false
}

// hiddenPaths lists the dotted paths of hidden fields.
func (s *Schema) hiddenPaths() []string {
	var out []string
	s.walk(func(f *SchemaField) {
		if f.Spec.Hidden {
			out = append(out, f.Path)
		}
	})
	return out
}

// fieldIndexes derives indexes from unique and index flags.
func (s *Schema) fieldIndexes() []docstore.Index {
	var out []docstore.Index
	s.walk(func(f *SchemaField) {
		if !f.Spec.Unique && !f.Spec.Index {
			return
		}
		out = append(out, docstore.Index{
			Keys:   bsonKeys(f.Path, 1),
			Unique: f.Spec.Unique,
			Sparse: f.Spec.Sparse,
		})
	})
	return out
}

func (s *Schema) walk(fn func(f *SchemaField)) {
	for _, f := range s.Fields() {
		fn(f)
		typ := f.Type
		if arr, ok := typ.(*ArrayType); ok {
			typ = arr.Elem
		}
		if sub, ok := typ.(*SubdocumentType); ok {
			sub.Schema.walk(fn)
		}
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
