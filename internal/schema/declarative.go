package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

type declaration struct {
	Fields  map[string]any     `mapstructure:"fields"`
	Options declarationOptions `mapstructure:"options"`
}

type declarationOptions struct {
	SchemaOptions *declaredSchemaOptions `mapstructure:"schemaOptions"`
	Indexes       []declaredIndex        `mapstructure:"indexes"`
}

type declaredSchemaOptions struct {
	Timestamps *bool  `mapstructure:"timestamps"`
	Collection string `mapstructure:"collection"`
	ToJSON     struct {
		Virtuals bool `mapstructure:"virtuals"`
	} `mapstructure:"toJSON"`
}

type declaredIndex struct {
	Fields  any `mapstructure:"fields"`
	Options struct {
		Name   string `mapstructure:"name"`
		Unique bool   `mapstructure:"unique"`
		Sparse bool   `mapstructure:"sparse"`
	} `mapstructure:"options"`
}

// fieldOptions are the keys accepted next to "type". Constraints that carry a
// message accept either the bare value or a [value, message] pair.
type fieldOptions struct {
	Required  any   `mapstructure:"required"`
	Unique    bool  `mapstructure:"unique"`
	Sparse    bool  `mapstructure:"sparse"`
	Index     bool  `mapstructure:"index"`
	Select    *bool `mapstructure:"select"`
	Trim      bool  `mapstructure:"trim"`
	Lowercase bool  `mapstructure:"lowercase"`
	Uppercase bool  `mapstructure:"uppercase"`
	MinLength any   `mapstructure:"minLength"`
	MaxLength any   `mapstructure:"maxLength"`
	Min       any   `mapstructure:"min"`
	Max       any   `mapstructure:"max"`
	Match     any   `mapstructure:"match"`
	Enum      any   `mapstructure:"enum"`
	Format    any   `mapstructure:"format"`
	Default   any   `mapstructure:"default"`
}

// ParseDeclarationYAML decodes a YAML model declaration into loosely typed
// values accepted by DecodeDeclaration.
func ParseDeclarationYAML(data []byte) (any, error) {
	var out any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("schema: parse declaration: %w", err)
	}
	return out, nil
}

// CompileDeclaration compiles a loosely typed declaration, as produced by a
// YAML or JSON decoder. extend runs on the decoded config before compiling,
// so Go hooks, methods, statics and virtuals can be attached.
func (c *Compiler) CompileDeclaration(name any, raw any, extend ...func(*ModelConfig)) (*Model, error) {
	modelName, ok := name.(string)
	if !ok || strings.TrimSpace(modelName) == "" {
		return nil, apperrors.ErrInvalidModelName.WithInternal(fmt.Errorf("schema: model name %v (%T)", name, name))
	}
	cfg, err := DecodeDeclaration(raw)
	if err != nil {
		return nil, err
	}
	for _, fn := range extend {
		fn(cfg)
	}
	return c.Compile(modelName, cfg)
}

// DecodeDeclaration converts a loosely typed declaration into a ModelConfig.
func DecodeDeclaration(raw any) (*ModelConfig, error) {
	root, ok := toDocument(raw)
	if raw == nil || !ok {
		return nil, apperrors.ErrInvalidConfigStructure.WithInternal(fmt.Errorf("schema: declaration is %T", raw))
	}
	fields, present := root["fields"]
	if !present || fields == nil {
		return nil, apperrors.ErrMissingFieldsObject.WithInternal(fmt.Errorf("schema: declaration has no fields"))
	}

	invalid := func(err error) error {
		return apperrors.ErrInvalidConfigStructure.WithInternal(fmt.Errorf("schema: declaration: %w", err))
	}
	if _, ok := toDocument(fields); !ok {
		return nil, invalid(fmt.Errorf("fields must be an object, got %T", fields))
	}

	var decl declaration
	if err := decode(root, &decl); err != nil {
		return nil, invalid(err)
	}

	cfg := &ModelConfig{Fields: make(map[string]*FieldSpec, len(decl.Fields))}
	for name, rawField := range decl.Fields {
		spec, err := parseField(name, rawField)
		if err != nil {
			return nil, invalid(err)
		}
		cfg.Fields[name] = spec
	}

	if so := decl.Options.SchemaOptions; so != nil {
		opts := DefaultSchemaOptions()
		if so.Timestamps != nil {
			opts.Timestamps = *so.Timestamps
		}
		opts.Collection = so.Collection
		opts.ToJSON.Virtuals = so.ToJSON.Virtuals
		cfg.Options.SchemaOptions = &opts
	}

	for i, idx := range decl.Options.Indexes {
		keys, err := parseIndexKeys(idx.Fields)
		if err != nil {
			return nil, invalid(fmt.Errorf("index %d: %w", i, err))
		}
		cfg.Options.Indexes = append(cfg.Options.Indexes, IndexDeclaration{
			Fields: keys,
			Options: IndexOptions{
				Name:   idx.Options.Name,
				Unique: idx.Options.Unique,
				Sparse: idx.Options.Sparse,
			},
		})
	}
	return cfg, nil
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func parseField(path string, raw any) (*FieldSpec, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("field %q: declaration is empty", path)
	case string:
		return &FieldSpec{Type: TypeTag(v)}, nil
	}

	if items, ok := toSlice(raw); ok {
		return parseArray(path, items)
	}

	doc, ok := toDocument(raw)
	if !ok {
		return nil, fmt.Errorf("field %q: unsupported declaration %T", path, raw)
	}
	typeValue, typed := doc["type"]
	if !typed {
		nested, err := parseNested(path, doc)
		if err != nil {
			return nil, err
		}
		return &FieldSpec{Fields: nested}, nil
	}

	spec := &FieldSpec{}
	switch t := typeValue.(type) {
	case string:
		spec.Type = TypeTag(t)
	default:
		shape, err := parseField(path, t)
		if err != nil {
			return nil, err
		}
		spec.Fields, spec.Of = shape.Fields, shape.Of
		if spec.Fields == nil && spec.Of == nil {
			spec.Type = shape.Type
		}
	}

	rest := make(bson.M, len(doc))
	for key, value := range doc {
		if key != "type" {
			rest[key] = value
		}
	}
	var opts fieldOptions
	if err := decode(rest, &opts); err != nil {
		return nil, fmt.Errorf("field %q: %w", path, err)
	}
	if err := applyFieldOptions(spec, opts); err != nil {
		return nil, fmt.Errorf("field %q: %w", path, err)
	}
	return spec, nil
}

func parseArray(path string, items []any) (*FieldSpec, error) {
	switch len(items) {
	case 0:
		return &FieldSpec{Type: Array}, nil
	case 1:
		elem, err := parseField(path+".$", items[0])
		if err != nil {
			return nil, err
		}
		return &FieldSpec{Of: elem}, nil
	default:
		return nil, fmt.Errorf("field %q: array declarations take exactly one element", path)
	}
}

func parseNested(path string, doc bson.M) (map[string]*FieldSpec, error) {
	nested := make(map[string]*FieldSpec, len(doc))
	for key, value := range doc {
		spec, err := parseField(path+"."+key, value)
		if err != nil {
			return nil, err
		}
		nested[key] = spec
	}
	return nested, nil
}

func applyFieldOptions(spec *FieldSpec, opts fieldOptions) error {
	spec.Unique = opts.Unique
	spec.Sparse = opts.Sparse
	spec.Index = opts.Index
	spec.Trim = opts.Trim
	spec.Lowercase = opts.Lowercase
	spec.Uppercase = opts.Uppercase
	spec.Default = opts.Default
	if opts.Select != nil {
		spec.Hidden = !*opts.Select
	}

	if opts.Required != nil {
		value, msg := withMessage(opts.Required)
		required, ok := value.(bool)
		if !ok {
			return fmt.Errorf("required must be a boolean")
		}
		spec.Required, spec.RequiredMessage = required, msg
	}

	var err error
	if spec.MinLength, spec.MinLengthMessage, err = intBound("minLength", opts.MinLength); err != nil {
		return err
	}
	if spec.MaxLength, spec.MaxLengthMessage, err = intBound("maxLength", opts.MaxLength); err != nil {
		return err
	}
	if spec.Min, spec.MinMessage, err = floatBound("min", opts.Min); err != nil {
		return err
	}
	if spec.Max, spec.MaxMessage, err = floatBound("max", opts.Max); err != nil {
		return err
	}

	if opts.Match != nil {
		value, msg := withMessage(opts.Match)
		pattern, ok := value.(string)
		if !ok {
			return fmt.Errorf("match must be a pattern string")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("match: %w", err)
		}
		spec.Match, spec.MatchMessage = re, msg
	}

	if opts.Format != nil {
		value, msg := withMessage(opts.Format)
		tag, ok := value.(string)
		if !ok {
			return fmt.Errorf("format must be a validator tag")
		}
		spec.Format, spec.FormatMessage = tag, msg
	}

	if opts.Enum != nil {
		values, msg, err := enumValues(opts.Enum)
		if err != nil {
			return err
		}
		spec.Enum, spec.EnumMessage = values, msg
	}
	return nil
}

// withMessage splits a [value, message] pair.
func withMessage(raw any) (any, string) {
	if items, ok := toSlice(raw); ok && len(items) == 2 {
		if msg, isString := items[1].(string); isString {
			return items[0], msg
		}
	}
	return raw, ""
}

func intBound(name string, raw any) (*int, string, error) {
	if raw == nil {
		return nil, "", nil
	}
	value, msg := withMessage(raw)
	f, ok := number(value)
	if !ok || f != float64(int(f)) {
		return nil, "", fmt.Errorf("%s must be an integer", name)
	}
	return Int(int(f)), msg, nil
}

func floatBound(name string, raw any) (*float64, string, error) {
	if raw == nil {
		return nil, "", nil
	}
	value, msg := withMessage(raw)
	f, ok := number(value)
	if !ok {
		return nil, "", fmt.Errorf("%s must be a number", name)
	}
	return Float(f), msg, nil
}

// enumValues accepts a list of strings or {values, message}.
func enumValues(raw any) ([]string, string, error) {
	var msg string
	if doc, ok := toDocument(raw); ok {
		msg, _ = doc["message"].(string)
		raw = doc["values"]
	}
	items, ok := toSlice(raw)
	if !ok {
		return nil, "", fmt.Errorf("enum must be a list")
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		s, isString := item.(string)
		if !isString {
			return nil, "", fmt.Errorf("enum values must be strings, got %T", item)
		}
		values = append(values, s)
	}
	return values, msg, nil
}

// parseIndexKeys accepts ["-price", "city"], [{price: -1}, {city: 1}] or a
// map, whose keys are taken in name order.
func parseIndexKeys(raw any) (bson.D, error) {
	if items, ok := toSlice(raw); ok {
		keys := make(bson.D, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				dir := 1
				if strings.HasPrefix(v, "-") {
					dir, v = -1, v[1:]
				}
				keys = append(keys, bson.E{Key: v, Value: dir})
			default:
				doc, ok := toDocument(item)
				if !ok || len(doc) != 1 {
					return nil, fmt.Errorf("index key %v must name one field", item)
				}
				for key, dir := range doc {
					keys = append(keys, bson.E{Key: key, Value: dir})
				}
			}
		}
		return keys, nil
	}

	doc, ok := toDocument(raw)
	if !ok {
		return nil, fmt.Errorf("index fields must be a list or a map")
	}
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)
	keys := make(bson.D, 0, len(names))
	for _, name := range names {
		keys = append(keys, bson.E{Key: name, Value: doc[name]})
	}
	return keys, nil
}
