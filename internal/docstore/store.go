package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the primary key of every stored document.
const IDField = "_id"

var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrDuplicateKey marks writes rejected by a unique index.
	ErrDuplicateKey = errors.New("docstore: duplicate key")
)

// DuplicateKeyError describes which unique index rejected a write.
type DuplicateKeyError struct {
	Collection string
	Index      string
	Fields     []string
	Err        error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("docstore: duplicate key in %s index %s", e.Collection, e.Index)
}

// Is matches ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// Change lists the paths written by a partial update.
type Change struct {
	Set   bson.M
	Unset []string
}

// Empty reports whether the change writes nothing.
func (c Change) Empty() bool {
	return len(c.Set) == 0 && len(c.Unset) == 0
}

// FindOptions tunes read operations.
type FindOptions struct {
	Sort  bson.D
	Skip  int64
	Limit int64
}

// Index declares a secondary index over one or more paths.
type Index struct {
	Name   string
	Keys   bson.D
	Unique bool
	Sparse bool
}

// Fields lists the indexed paths in declaration order.
func (i Index) Fields() []string {
	out := make([]string, 0, len(i.Keys))
	for _, key := range i.Keys {
		out = append(out, key.Key)
	}
	return out
}

// IndexName derives the MongoDB style name (path_direction joined by "_").
func (i Index) IndexName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	parts := make([]string, 0, len(i.Keys)*2)
	for _, key := range i.Keys {
		parts = append(parts, key.Key, fmt.Sprint(key.Value))
	}
	return strings.Join(parts, "_")
}

// Store persists schemaless documents grouped into collections. Every document
// carries a primitive.ObjectID under IDField.
type Store interface {
	Insert(ctx context.Context, collection string, doc bson.M) error
	Update(ctx context.Context, collection string, id primitive.ObjectID, change Change) error
	FindOne(ctx context.Context, collection string, filter bson.M, opts FindOptions) (bson.M, error)
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)
	// Increment atomically adds delta to the numeric value at path and returns
	// the updated document.
	Increment(ctx context.Context, collection string, id primitive.ObjectID, path string, delta int64) (bson.M, error)
	EnsureIndex(ctx context.Context, collection string, index Index) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// SortDocuments orders docs in place according to sort.
func SortDocuments(docs []bson.M, order bson.D) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			a, _ := Lookup(docs[i], key.Key)
			b, _ := Lookup(docs[j], key.Key)
			cmp, ok := Compare(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if direction(key.Value) < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func direction(v any) int {
	if f, ok := toFloat(v); ok && f < 0 {
		return -1
	}
	return 1
}

// Window applies skip and limit to an ordered result set.
func Window(docs []bson.M, opts FindOptions) []bson.M {
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(docs)) {
		docs = docs[:opts.Limit]
	}
	return docs
}

// DocumentID extracts the ObjectID primary key from doc.
func DocumentID(doc bson.M) (primitive.ObjectID, error) {
	switch id := doc[IDField].(type) {
	case primitive.ObjectID:
		if id.IsZero() {
			return id, errors.New("docstore: document id is zero")
		}
		return id, nil
	case string:
		return primitive.ObjectIDFromHex(id)
	default:
		return primitive.NilObjectID, fmt.Errorf("docstore: document id has unsupported type %T", id)
	}
}
