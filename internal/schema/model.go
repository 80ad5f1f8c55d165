package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/docstore"
	"github.com/charlesng35/estatehub/internal/monitoring"
)

// Model is a compiled entity type bound to a collection of the store.
type Model struct {
	name       string
	collection string
	schema     *Schema
	store      docstore.Store
	options    SchemaOptions
	hooks      Hooks
	methods    map[string]MethodFunc
	statics    map[string]StaticFunc
	virtuals   map[string]Virtual
	indexes    []docstore.Index
	now        func() time.Time
	log        *zap.Logger
}

// Name returns the entity name.
func (m *Model) Name() string { return m.name }

// Collection returns the backing collection.
func (m *Model) Collection() string { return m.collection }

// Schema returns the compiled field tree.
func (m *Model) Schema() *Schema { return m.schema }

// Options returns the schema options in effect.
func (m *Model) Options() SchemaOptions { return m.options }

// Indexes lists the declared secondary indexes.
func (m *Model) Indexes() []docstore.Index {
	return append([]docstore.Index(nil), m.indexes...)
}

// HasMethod reports whether an instance method is registered.
func (m *Model) HasMethod(name string) bool {
	_, ok := m.methods[name]
	return ok
}

// HasStatic reports whether a collection behaviour is registered.
func (m *Model) HasStatic(name string) bool {
	_, ok := m.statics[name]
	return ok
}

// HookCount returns the number of hooks registered for event and phase
// ("pre" or "post").
func (m *Model) HookCount(event Event, phase string) int {
	if phase == "post" {
		return len(m.hooks.Post[event])
	}
	return len(m.hooks.Pre[event])
}

// Now returns the model clock.
func (m *Model) Now() time.Time { return m.now() }

// Logger returns the model logger.
func (m *Model) Logger() *zap.Logger { return m.log }

// New builds an unsaved document with defaults applied and values set on top.
func (m *Model) New(values bson.M) (*Document, error) {
	data := bson.M{docstore.IDField: primitive.NewObjectID()}
	applyDefaults(m.schema, data)

	d := newDocument(m, data, true)
	if err := d.SetAll(values); err != nil {
		return nil, err
	}
	return d, nil
}

// Create builds a document and saves it.
func (m *Model) Create(ctx context.Context, values bson.M) (*Document, error) {
	d, err := m.New(values)
	if err != nil {
		return nil, err
	}
	if err := d.Save(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func applyDefaults(s *Schema, data bson.M) {
	for _, f := range s.Fields() {
		if _, present := data[f.Name]; present {
			continue
		}
		if value, ok := f.Spec.defaultValue(); ok {
			if casted, err := castValue(f.Type, f.Spec, value); err == nil && casted != nil {
				data[f.Name] = casted
			}
			continue
		}
		switch t := f.Type.(type) {
		case *ArrayType:
			data[f.Name] = []any{}
		case *SubdocumentType:
			nested := bson.M{}
			applyDefaults(t.Schema, nested)
			if len(nested) > 0 {
				data[f.Name] = nested
			}
		}
	}
}

// Find returns every document matching filter.
func (m *Model) Find(ctx context.Context, filter bson.M, opts ...QueryOption) (docs []*Document, err error) {
	defer m.track("find", time.Now(), &err)

	q := newQuery(filter, opts)
	hc := &HookContext{Model: m, Event: EventFind, Operation: "find", Query: q}
	if err := m.runPre(ctx, EventFind, hc); err != nil {
		return nil, err
	}

	raws, err := m.store.Find(ctx, m.collection, q.Filter, q.findOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", m.name, err)
	}
	docs = make([]*Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, m.hydrate(raw, q))
	}

	hc.Results = docs
	if err := m.runPost(ctx, EventFind, hc); err != nil {
		return nil, err
	}
	return docs, nil
}

// FindOne returns the first document matching filter or ErrNotFound.
func (m *Model) FindOne(ctx context.Context, filter bson.M, opts ...QueryOption) (*Document, error) {
	return m.findOne(ctx, "findOne", filter, opts)
}

// FindByID loads a document by primary key. A malformed id fails as a
// validation error on _id.
func (m *Model) FindByID(ctx context.Context, id any, opts ...QueryOption) (*Document, error) {
	casted, err := castScalar(ObjectID, id)
	if err != nil {
		var ce *castError
		errors.As(err, &ce)
		verr := newValidationError(m.name)
		verr.add(newCastError(docstore.IDField, ce))
		return nil, verr
	}
	return m.findOne(ctx, "findById", bson.M{docstore.IDField: casted}, opts)
}

func (m *Model) findOne(ctx context.Context, operation string, filter bson.M, opts []QueryOption) (doc *Document, err error) {
	defer m.track(operation, time.Now(), &err)

	q := newQuery(filter, opts)
	q.Limit = 1
	hc := &HookContext{Model: m, Event: EventFind, Operation: operation, Query: q}
	if err := m.runPre(ctx, EventFind, hc); err != nil {
		return nil, err
	}

	raw, err := m.store.FindOne(ctx, m.collection, q.Filter, q.findOptions())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%s: %s: %w", m.name, operation, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %s: %w", m.name, operation, err)
	}
	doc = m.hydrate(raw, q)

	hc.Results = []*Document{doc}
	if err := m.runPost(ctx, EventFind, hc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Count returns the number of documents matching filter.
func (m *Model) Count(ctx context.Context, filter bson.M) (n int64, err error) {
	defer m.track("count", time.Now(), &err)

	q := newQuery(filter, nil)
	hc := &HookContext{Model: m, Event: EventFind, Operation: "count", Query: q}
	if err := m.runPre(ctx, EventFind, hc); err != nil {
		return 0, err
	}
	n, err = m.store.Count(ctx, m.collection, q.Filter)
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", m.name, err)
	}
	if err := m.runPost(ctx, EventFind, hc); err != nil {
		return 0, err
	}
	return n, nil
}

// FindOneAndUpdate loads the first match, applies update and saves it,
// returning the updated document. update accepts $set and $unset operators
// as well as plain path keys.
func (m *Model) FindOneAndUpdate(ctx context.Context, filter, update bson.M, opts ...QueryOption) (*Document, error) {
	doc, err := m.findOne(ctx, "findOneAndUpdate", filter, opts)
	if err != nil {
		return nil, err
	}
	if err := applyUpdate(doc, update); err != nil {
		return nil, err
	}
	if err := doc.Save(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

func applyUpdate(doc *Document, update bson.M) error {
	plain := bson.M{}
	for key, value := range update {
		switch key {
		case "$set":
			set, ok := toDocument(value)
			if !ok {
				return fmt.Errorf("%s: $set expects a document", doc.model.name)
			}
			if err := doc.SetAll(set); err != nil {
				return err
			}
		case "$unset":
			unset, ok := toDocument(value)
			if !ok {
				return fmt.Errorf("%s: $unset expects a document", doc.model.name)
			}
			paths := make([]string, 0, len(unset))
			for path := range unset {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				doc.Unset(path)
			}
		default:
			if len(key) > 0 && key[0] == '$' {
				return fmt.Errorf("%s: unsupported update operator %s", doc.model.name, key)
			}
			plain[key] = value
		}
	}
	return doc.SetAll(plain)
}

// DeleteOne removes the first document matching filter and reports how many
// documents were deleted.
func (m *Model) DeleteOne(ctx context.Context, filter bson.M) (n int64, err error) {
	defer m.track("deleteOne", time.Now(), &err)

	q := newQuery(filter, nil)
	hc := &HookContext{Model: m, Event: EventDeleteOne, Operation: "deleteOne", Query: q}
	if err := m.runPre(ctx, EventDeleteOne, hc); err != nil {
		return 0, err
	}
	n, err = m.store.DeleteOne(ctx, m.collection, q.Filter)
	if err != nil {
		return 0, fmt.Errorf("%s: deleteOne: %w", m.name, err)
	}
	hc.Deleted = n
	if err := m.runPost(ctx, EventDeleteOne, hc); err != nil {
		return 0, err
	}
	return n, nil
}

// Increment atomically adds delta to a Number path and returns the updated
// document. Hooks and validation do not run.
func (m *Model) Increment(ctx context.Context, id primitive.ObjectID, path string, delta int64) (doc *Document, err error) {
	defer m.track("increment", time.Now(), &err)

	typ, _, ok := m.schema.Path(path)
	if scalar, isScalar := typ.(*ScalarType); !ok || !isScalar || scalar.Tag != Number {
		return nil, fmt.Errorf("%s: increment: %q is not a Number path", m.name, path)
	}
	raw, err := m.store.Increment(ctx, m.collection, id, path, delta)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%s: increment: %w", m.name, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: increment: %w", m.name, err)
	}
	return m.hydrate(raw, &Query{}), nil
}

// Call invokes a collection behaviour.
func (m *Model) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := m.statics[name]
	if !ok {
		return nil, fmt.Errorf("schema: %s has no static %q", m.name, name)
	}
	return fn(ctx, m, args...)
}

// SyncIndexes creates every declared index in the store.
func (m *Model) SyncIndexes(ctx context.Context) error {
	var errs error
	for _, idx := range m.indexes {
		if err := m.store.EnsureIndex(ctx, m.collection, idx); err != nil {
			monitoring.RecordIndexSync(m.name, "error")
			m.log.Error("index sync failed", zap.String("index", idx.IndexName()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: index %s: %w", m.name, idx.IndexName(), err))
			continue
		}
		monitoring.RecordIndexSync(m.name, "success")
	}
	return errs
}

func (m *Model) validate(ctx context.Context, d *Document) error {
	hc := &HookContext{Model: m, Event: EventValidate, Operation: "validate", Document: d}
	if err := m.runPre(ctx, EventValidate, hc); err != nil {
		return err
	}
	if verr := validateDocument(d); verr != nil {
		monitoring.RecordValidationFailure(m.name)
		return verr
	}
	return m.runPost(ctx, EventValidate, hc)
}

func (m *Model) save(ctx context.Context, d *Document) (err error) {
	defer m.track("save", time.Now(), &err)

	if err := m.validate(ctx, d); err != nil {
		return err
	}

	hc := &HookContext{Model: m, Event: EventSave, Operation: "save", Document: d}
	if err := m.runPre(ctx, EventSave, hc); err != nil {
		return err
	}

	if m.options.Timestamps && (d.isNew || d.IsModified()) {
		now := m.now().UTC()
		if _, present := d.data[createdAtField]; d.isNew && !present {
			if err := d.Set(createdAtField, now); err != nil {
				return err
			}
		}
		if err := d.Set(updatedAtField, now); err != nil {
			return err
		}
	}

	if d.isNew {
		if err := m.store.Insert(ctx, m.collection, docstore.Clone(d.data)); err != nil {
			return fmt.Errorf("%s: insert: %w", m.name, err)
		}
	} else if change := d.pendingChange(); !change.Empty() {
		if err := m.store.Update(ctx, m.collection, d.ID(), change); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return fmt.Errorf("%s: update: %w", m.name, ErrNotFound)
			}
			return fmt.Errorf("%s: update: %w", m.name, err)
		}
	}
	d.resetModified()

	return m.runPost(ctx, EventSave, hc)
}

// hydrate turns a stored document into a Document. Stored values are cast
// back to their declared types; values that do not cast are kept as stored.
func (m *Model) hydrate(raw bson.M, q *Query) *Document {
	data := docstore.NormalizeDocument(raw)
	for _, f := range m.schema.Fields() {
		value, present := data[f.Name]
		if !present || value == nil {
			continue
		}
		if casted, err := castValue(f.Type, f.Spec, value); err == nil {
			data[f.Name] = casted
		}
	}

	d := newDocument(m, data, false)
	for _, path := range newProjection(q.Select).apply(m.schema, data) {
		d.excluded[path] = struct{}{}
	}
	return d
}

func (m *Model) runPre(ctx context.Context, event Event, hc *HookContext) error {
	return m.runHooks(ctx, "pre", m.hooks.Pre[event], hc)
}

func (m *Model) runPost(ctx context.Context, event Event, hc *HookContext) error {
	return m.runHooks(ctx, "post", m.hooks.Post[event], hc)
}

func (m *Model) runHooks(ctx context.Context, phase string, hooks []HookFunc, hc *HookContext) error {
	for i, hook := range hooks {
		if err := hook(ctx, hc); err != nil {
			monitoring.RecordHookFailure(m.name, string(hc.Event), phase, err.Error())
			m.log.Warn("hook failed",
				zap.String("event", string(hc.Event)),
				zap.String("phase", phase),
				zap.Int("position", i),
				zap.String("operation", hc.Operation),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

func (m *Model) track(operation string, start time.Time, errp *error) {
	result := "success"
	if errp != nil && *errp != nil {
		result = "error"
		if errors.Is(*errp, ErrNotFound) {
			result = "not_found"
		}
	}
	monitoring.RecordModelOperation(m.name, operation, result, time.Since(start))
}

func (m *Model) virtualNames() []string {
	names := make([]string, 0, len(m.virtuals))
	for name := range m.virtuals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
