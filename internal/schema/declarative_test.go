package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

const listingYAML = `
fields:
  title:
    type: String
    required: [true, "Title is required"]
    trim: true
    maxLength: [120, "Title is too long"]
  price:
    type: Decimal128
    min: 0
  status:
    type: String
    enum:
      values: [draft, published]
      message: "Unknown status"
    default: draft
  tags: [String]
  address:
    street: String
    city:
      type: String
      index: true
  rooms:
    - label: String
      size: Number
  secret:
    type: String
    select: false
  contact:
    type: String
    format: email
    match: "^[^@]+@[^@]+$"
options:
  schemaOptions:
    timestamps: true
    toJSON:
      virtuals: true
  indexes:
    - fields: ["-price", "status"]
      options:
        name: price_status
`

func TestDecodeDeclarationFromYAML(t *testing.T) {
	raw, err := ParseDeclarationYAML([]byte(listingYAML))
	require.NoError(t, err)

	cfg, err := DecodeDeclaration(raw)
	require.NoError(t, err)

	title := cfg.Fields["title"]
	require.Equal(t, String, title.Type)
	require.True(t, title.Required)
	require.Equal(t, "Title is required", title.RequiredMessage)
	require.True(t, title.Trim)
	require.Equal(t, 120, *title.MaxLength)
	require.Equal(t, "Title is too long", title.MaxLengthMessage)

	require.Equal(t, Decimal128, cfg.Fields["price"].Type)
	require.Equal(t, float64(0), *cfg.Fields["price"].Min)

	status := cfg.Fields["status"]
	require.Equal(t, []string{"draft", "published"}, status.Enum)
	require.Equal(t, "Unknown status", status.EnumMessage)
	require.Equal(t, "draft", status.Default)

	require.Equal(t, String, cfg.Fields["tags"].Of.Type)
	require.True(t, cfg.Fields["address"].Fields["city"].Index)
	require.Equal(t, Number, cfg.Fields["rooms"].Of.Fields["size"].Type)
	require.True(t, cfg.Fields["secret"].Hidden)
	require.Equal(t, "email", cfg.Fields["contact"].Format)
	require.True(t, cfg.Fields["contact"].Match.MatchString("a@b"))

	require.True(t, cfg.Options.SchemaOptions.Timestamps)
	require.True(t, cfg.Options.SchemaOptions.ToJSON.Virtuals)
	require.Len(t, cfg.Options.Indexes, 1)
	require.Equal(t, bson.D{{Key: "price", Value: -1}, {Key: "status", Value: 1}}, cfg.Options.Indexes[0].Fields)
	require.Equal(t, "price_status", cfg.Options.Indexes[0].Options.Name)
}

func TestCompileDeclarationWithExtensions(t *testing.T) {
	raw, err := ParseDeclarationYAML([]byte(listingYAML))
	require.NoError(t, err)

	m, err := newTestCompiler(t).CompileDeclaration("Listing", raw, func(cfg *ModelConfig) {
		cfg.Virtuals = map[string]Virtual{
			"headline": {Get: func(d *Document) any { return d.String("title") + " (" + d.String("status") + ")" }},
		}
	})
	require.NoError(t, err)
	require.NoError(t, m.SyncIndexes(context.Background()))

	doc, err := m.Create(context.Background(), bson.M{
		"title":   "  Garden flat ",
		"price":   "250000",
		"contact": "agent@example.com",
		"address": bson.M{"city": "Leeds"},
	})
	require.NoError(t, err)
	require.Equal(t, "Garden flat", doc.String("title"))
	require.Equal(t, "Garden flat (draft)", doc.ToJSON()["headline"])

	_, err = m.Create(context.Background(), bson.M{"status": "sold"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Unknown status", verr.Errors["status"].Message)
	require.Equal(t, "Title is required", verr.Errors["title"].Message)
}

func TestDecodeDeclarationRejectsMalformedFields(t *testing.T) {
	cases := map[string]any{
		"unknown option":  map[string]any{"fields": map[string]any{"a": map[string]any{"type": "String", "colour": "red"}}},
		"two element list": map[string]any{"fields": map[string]any{"a": []any{"String", "Number"}}},
		"null field":      map[string]any{"fields": map[string]any{"a": nil}},
		"bad regexp":      map[string]any{"fields": map[string]any{"a": map[string]any{"type": "String", "match": "("}}},
		"bad bound":       map[string]any{"fields": map[string]any{"a": map[string]any{"type": "String", "minLength": "x"}}},
		"unknown key":     map[string]any{"fields": map[string]any{}, "plugins": []any{}},
		"bad index":       map[string]any{"fields": map[string]any{}, "options": map[string]any{"indexes": []any{map[string]any{"fields": 3}}}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDeclaration(raw)
			require.Equal(t, apperrors.CodeInvalidConfigStructure, apperrors.CodeOf(err))
		})
	}
}
