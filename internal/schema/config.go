package schema

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Event names a lifecycle point hooks attach to.
type Event string

const (
	EventValidate  Event = "validate"
	EventSave      Event = "save"
	EventFind      Event = "find"
	EventDeleteOne Event = "deleteOne"
)

var knownEvents = map[Event]struct{}{
	EventValidate:  {},
	EventSave:      {},
	EventFind:      {},
	EventDeleteOne: {},
}

// HookContext is handed to every hook. Document is set for document
// middleware (validate, save), Query for query middleware (find, deleteOne).
type HookContext struct {
	Model     *Model
	Event     Event
	Operation string
	Document  *Document
	Query     *Query
	Results   []*Document
	Deleted   int64
}

// HookFunc runs before or after an event. A pre hook error aborts the operation.
type HookFunc func(ctx context.Context, hc *HookContext) error

// MethodFunc is an instance behaviour bound to a document.
type MethodFunc func(ctx context.Context, doc *Document, args ...any) (any, error)

// StaticFunc is a collection behaviour bound to a model.
type StaticFunc func(ctx context.Context, model *Model, args ...any) (any, error)

// Virtual is a computed property. Set is optional.
type Virtual struct {
	Get func(doc *Document) any
	Set func(doc *Document, value any) error
}

// Hooks groups pre and post hooks by event, each list in registration order.
type Hooks struct {
	Pre  map[Event][]HookFunc
	Post map[Event][]HookFunc
}

// ToJSONOptions controls document serialisation.
type ToJSONOptions struct {
	Virtuals  bool
	Transform func(doc *Document, out bson.M) bson.M
}

// SchemaOptions are settings that apply to every document of a model.
type SchemaOptions struct {
	// Timestamps maintains createdAt and updatedAt when true.
	Timestamps bool
	// Collection overrides the pluralised model name.
	Collection string
	ToJSON     ToJSONOptions
}

// DefaultSchemaOptions enables timestamps.
func DefaultSchemaOptions() SchemaOptions {
	return SchemaOptions{Timestamps: true}
}

// IndexOptions tune a secondary index.
type IndexOptions struct {
	Name   string `validate:"omitempty,max=120"`
	Unique bool
	Sparse bool
}

// IndexDeclaration declares a secondary index over ordered fields.
type IndexDeclaration struct {
	Fields  bson.D `validate:"required,min=1"`
	Options IndexOptions
}

// ModelOptions groups schema options and index declarations.
type ModelOptions struct {
	// SchemaOptions falls back to DefaultSchemaOptions when nil.
	SchemaOptions *SchemaOptions
	Indexes       []IndexDeclaration
}

// ModelConfig is the declarative input of the compiler.
type ModelConfig struct {
	Fields   map[string]*FieldSpec
	Options  ModelOptions
	Hooks    Hooks
	Methods  map[string]MethodFunc
	Statics  map[string]StaticFunc
	Virtuals map[string]Virtual
}

// Pre appends a pre hook for event.
func (c *ModelConfig) Pre(event Event, fn HookFunc) *ModelConfig {
	if c.Hooks.Pre == nil {
		c.Hooks.Pre = make(map[Event][]HookFunc)
	}
	c.Hooks.Pre[event] = append(c.Hooks.Pre[event], fn)
	return c
}

// Post appends a post hook for event.
func (c *ModelConfig) Post(event Event, fn HookFunc) *ModelConfig {
	if c.Hooks.Post == nil {
		c.Hooks.Post = make(map[Event][]HookFunc)
	}
	c.Hooks.Post[event] = append(c.Hooks.Post[event], fn)
	return c
}
