package schema

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/charlesng35/estatehub/internal/docstore"
)

// Query is the mutable read or delete request seen by query hooks.
type Query struct {
	Filter bson.M
	Sort   bson.D
	Skip   int64
	Limit  int64
	// Select holds projection entries: "path" includes, "-path" excludes and
	// "+path" adds a hidden field to the default projection.
	Select []string
}

// QueryOption customises a read.
type QueryOption func(*Query)

// Select appends projection entries.
func Select(paths ...string) QueryOption {
	return func(q *Query) {
		q.Select = append(q.Select, paths...)
	}
}

// SortBy orders results.
func SortBy(order bson.D) QueryOption {
	return func(q *Query) {
		q.Sort = order
	}
}

// Skip drops the first n results.
func Skip(n int64) QueryOption {
	return func(q *Query) {
		q.Skip = n
	}
}

// Limit caps the number of results.
func Limit(n int64) QueryOption {
	return func(q *Query) {
		q.Limit = n
	}
}

// Where adds a condition on path to the filter.
func Where(path string, condition any) QueryOption {
	return func(q *Query) {
		q.Where(path, condition)
	}
}

func newQuery(filter bson.M, opts []QueryOption) *Query {
	q := &Query{Filter: make(bson.M, len(filter))}
	for key, value := range filter {
		q.Filter[key] = value
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Constrains reports whether the filter mentions path at the top level or
// inside an $and clause.
func (q *Query) Constrains(path string) bool {
	return filterMentions(q.Filter, path)
}

func filterMentions(filter bson.M, path string) bool {
	if _, ok := filter[path]; ok {
		return true
	}
	clauses, ok := filter["$and"]
	if !ok {
		return false
	}
	items, _ := toSlice(clauses)
	for _, item := range items {
		if clause, ok := toDocument(item); ok && filterMentions(clause, path) {
			return true
		}
	}
	return false
}

// Where adds an equality or operator condition for path.
func (q *Query) Where(path string, condition any) *Query {
	if q.Filter == nil {
		q.Filter = bson.M{}
	}
	q.Filter[path] = condition
	return q
}

func (q *Query) findOptions() docstore.FindOptions {
	return docstore.FindOptions{Sort: q.Sort, Skip: q.Skip, Limit: q.Limit}
}

// projection splits Select into the paths to keep (inclusion mode), the
// hidden paths unlocked with "+" and the paths excluded with "-".
type projection struct {
	include map[string]struct{}
	unlock  map[string]struct{}
	exclude map[string]struct{}
}

func newProjection(entries []string) projection {
	p := projection{
		include: map[string]struct{}{},
		unlock:  map[string]struct{}{},
		exclude: map[string]struct{}{},
	}
	for _, entry := range entries {
		for _, token := range strings.Fields(entry) {
			switch {
			case strings.HasPrefix(token, "+"):
				p.unlock[token[1:]] = struct{}{}
			case strings.HasPrefix(token, "-"):
				p.exclude[token[1:]] = struct{}{}
			default:
				p.include[token] = struct{}{}
			}
		}
	}
	return p
}

// apply trims raw in place and returns the paths that were not loaded.
func (p projection) apply(s *Schema, raw bson.M) []string {
	var excluded []string

	if len(p.include) > 0 {
		for key := range raw {
			if key == docstore.IDField {
				continue
			}
			if _, keep := p.include[key]; !keep {
				delete(raw, key)
				excluded = append(excluded, key)
			}
		}
	}

	for _, path := range s.hiddenPaths() {
		_, unlocked := p.unlock[path]
		_, included := p.include[path]
		if unlocked || included {
			continue
		}
		docstore.Remove(raw, path)
		excluded = append(excluded, path)
	}

	for path := range p.exclude {
		docstore.Remove(raw, path)
		excluded = append(excluded, path)
	}
	return excluded
}
