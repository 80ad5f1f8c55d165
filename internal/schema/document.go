package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/docstore"
)

// Document is one instance of a compiled model. It is not safe for
// concurrent use.
type Document struct {
	model      *Model
	data       bson.M
	isNew      bool
	modified   map[string]struct{}
	castErrors map[string]*FieldError
	excluded   map[string]struct{}
}

func newDocument(m *Model, data bson.M, isNew bool) *Document {
	return &Document{
		model:      m,
		data:       data,
		isNew:      isNew,
		modified:   map[string]struct{}{},
		castErrors: map[string]*FieldError{},
		excluded:   map[string]struct{}{},
	}
}

// Model returns the model the document belongs to.
func (d *Document) Model() *Model { return d.model }

// ID returns the document primary key.
func (d *Document) ID() primitive.ObjectID {
	id, _ := d.data[docstore.IDField].(primitive.ObjectID)
	return id
}

// IsNew reports whether the document has never been saved.
func (d *Document) IsNew() bool { return d.isNew }

// Get returns the value at path, computing virtuals on the fly.
func (d *Document) Get(path string) any {
	if v, ok := d.model.virtuals[path]; ok {
		return v.Get(d)
	}
	value, _ := docstore.Lookup(d.data, path)
	return value
}

// Lookup returns the stored value at path and whether it is present.
func (d *Document) Lookup(path string) (any, bool) {
	return docstore.Lookup(d.data, path)
}

// String returns the string at path or "".
func (d *Document) String(path string) string {
	s, _ := d.Get(path).(string)
	return s
}

// Bool returns the boolean at path or false.
func (d *Document) Bool(path string) bool {
	b, _ := d.Get(path).(bool)
	return b
}

// Float returns the number at path or 0.
func (d *Document) Float(path string) float64 {
	f, _ := numericValue(d.Get(path))
	return f
}

// Time returns the date at path; ok is false when unset.
func (d *Document) Time(path string) (time.Time, bool) {
	t, ok := d.Get(path).(time.Time)
	return t, ok && !t.IsZero()
}

// Slice returns the array at path.
func (d *Document) Slice(path string) []any {
	items, _ := d.Get(path).([]any)
	return items
}

// Set casts value to the declared type of path and stores it. Paths outside
// the schema are ignored. Cast failures are reported by the next validation.
func (d *Document) Set(path string, value any) error {
	if v, ok := d.model.virtuals[path]; ok {
		if v.Set == nil {
			return fmt.Errorf("schema: virtual %q of %s is read only", path, d.model.name)
		}
		return v.Set(d, value)
	}

	typ, spec, ok := d.model.schema.Path(path)
	if !ok {
		d.model.log.Debug("ignoring path outside schema", zap.String("path", path))
		return nil
	}

	casted, err := castValue(typ, spec, value)
	if err != nil {
		var ce *castError
		if !errors.As(err, &ce) {
			return err
		}
		d.castErrors[path] = newCastError(path, ce)
		d.markModified(path)
		return nil
	}

	d.clearCastErrors(path)
	delete(d.excluded, path)

	if current, present := docstore.Lookup(d.data, path); present && !d.isNew && docstore.Equal(current, casted) {
		return nil
	}
	docstore.Assign(d.data, path, casted)
	d.markModified(path)
	return nil
}

// SetPersisted casts value into path without marking it modified, for values
// the store already holds.
func (d *Document) SetPersisted(path string, value any) error {
	typ, spec, ok := d.model.schema.Path(path)
	if !ok {
		return fmt.Errorf("schema: %s has no path %q", d.model.name, path)
	}
	casted, err := castValue(typ, spec, value)
	if err != nil {
		return err
	}
	docstore.Assign(d.data, path, casted)
	return nil
}

// SetAll sets every entry of values in key order.
func (d *Document) SetAll(values bson.M) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := d.Set(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Unset removes path from the document. Paths left out by the projection
// are removed from the store on the next save.
func (d *Document) Unset(path string) {
	if _, present := docstore.Lookup(d.data, path); !present && d.Selected(path) {
		return
	}
	docstore.Remove(d.data, path)
	d.clearCastErrors(path)
	d.markModified(path)
}

// MarkModified flags path for the next save, for in place mutations.
func (d *Document) MarkModified(path string) {
	d.markModified(path)
}

func (d *Document) markModified(path string) {
	d.modified[path] = struct{}{}
}

func (d *Document) clearCastErrors(path string) {
	for p := range d.castErrors {
		if p == path || strings.HasPrefix(p, path+".") {
			delete(d.castErrors, p)
		}
	}
}

// IsModified reports whether path, one of its ancestors or one of its
// descendants changed since the last save. Without arguments it reports
// whether anything changed.
func (d *Document) IsModified(paths ...string) bool {
	if len(paths) == 0 {
		return len(d.modified) > 0
	}
	for _, path := range paths {
		for m := range d.modified {
			if m == path || strings.HasPrefix(m, path+".") || strings.HasPrefix(path, m+".") {
				return true
			}
		}
	}
	return false
}

// ModifiedPaths lists modified paths in order.
func (d *Document) ModifiedPaths() []string {
	paths := make([]string, 0, len(d.modified))
	for path := range d.modified {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Selected reports whether path was loaded from the store.
func (d *Document) Selected(path string) bool {
	for excluded := range d.excluded {
		if excluded == path || strings.HasPrefix(path, excluded+".") {
			return false
		}
	}
	return true
}

// Validate runs validate hooks and schema validation.
func (d *Document) Validate(ctx context.Context) error {
	return d.model.validate(ctx, d)
}

// Save validates and persists the document.
func (d *Document) Save(ctx context.Context) error {
	return d.model.save(ctx, d)
}

// Call invokes an instance method registered on the model.
func (d *Document) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := d.model.methods[name]
	if !ok {
		return nil, fmt.Errorf("schema: %s has no method %q", d.model.name, name)
	}
	return fn(ctx, d, args...)
}

// ToMap returns a deep copy of the stored fields.
func (d *Document) ToMap() bson.M {
	return docstore.Clone(d.data)
}

// ToJSON returns the serialised form: hidden fields removed, virtuals added
// when enabled and the model transform applied.
func (d *Document) ToJSON() bson.M {
	out := docstore.Clone(d.data)
	for _, path := range d.model.schema.hiddenPaths() {
		docstore.Remove(out, path)
	}

	opts := d.model.options.ToJSON
	if opts.Virtuals {
		for _, name := range d.model.virtualNames() {
			docstore.Assign(out, name, d.model.virtuals[name].Get(d))
		}
	}
	if opts.Transform != nil {
		if transformed := opts.Transform(d, out); transformed != nil {
			out = transformed
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToJSON())
}

// pendingChange lists the writes of an existing document. A path whose
// ancestor is also modified is covered by the ancestor.
func (d *Document) pendingChange() docstore.Change {
	paths := d.ModifiedPaths()
	change := docstore.Change{Set: bson.M{}}
	for _, path := range paths {
		if _, failed := d.castErrors[path]; failed {
			continue
		}
		covered := false
		for _, other := range paths {
			if other != path && strings.HasPrefix(path, other+".") {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		if value, present := docstore.Lookup(d.data, path); present {
			change.Set[path] = value
		} else {
			change.Unset = append(change.Unset, path)
		}
	}
	return change
}

func (d *Document) resetModified() {
	d.modified = map[string]struct{}{}
	d.isNew = false
}
