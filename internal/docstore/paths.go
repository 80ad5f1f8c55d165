package docstore

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lookup resolves a dotted path inside doc. Numeric segments index into arrays.
func Lookup(doc bson.M, path string) (any, bool) {
	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case bson.M:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Assign stores value at a dotted path, creating intermediate documents as needed.
func Assign(doc bson.M, path string, value any) {
	segments := strings.Split(path, ".")
	var current any = doc
	for i, segment := range segments {
		last := i == len(segments)-1
		switch node := current.(type) {
		case bson.M:
			if last {
				node[segment] = value
				return
			}
			next, ok := node[segment]
			if !isContainer(next) || !ok {
				next = bson.M{}
				node[segment] = next
			}
			current = next
		case map[string]any:
			if last {
				node[segment] = value
				return
			}
			next, ok := node[segment]
			if !isContainer(next) || !ok {
				next = bson.M{}
				node[segment] = next
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return
			}
			if last {
				node[idx] = value
				return
			}
			if !isContainer(node[idx]) {
				node[idx] = bson.M{}
			}
			current = node[idx]
		default:
			return
		}
	}
}

// Remove deletes the value at a dotted path. Missing paths are ignored.
func Remove(doc bson.M, path string) {
	parent := path
	key := path
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		parent, key = path[:idx], path[idx+1:]
	} else {
		delete(doc, key)
		return
	}

	node, ok := Lookup(doc, parent)
	if !ok {
		return
	}
	switch m := node.(type) {
	case bson.M:
		delete(m, key)
	case map[string]any:
		delete(m, key)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case bson.M, map[string]any, []any:
		return true
	default:
		return false
	}
}

// Normalize converts driver specific container and date types into bson.M,
// []any and time.Time so that every backend yields the same shapes.
func Normalize(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(bson.M, len(v))
		for key, item := range v {
			out[key] = Normalize(item)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(v))
		for key, item := range v {
			out[key] = Normalize(item)
		}
		return out
	case bson.D:
		out := make(bson.M, len(v))
		for _, elem := range v {
			out[elem.Key] = Normalize(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}

// NormalizeDocument is Normalize specialised for top level documents.
func NormalizeDocument(doc bson.M) bson.M {
	if doc == nil {
		return nil
	}
	out, _ := Normalize(doc).(bson.M)
	return out
}

// Clone deep copies doc.
func Clone(doc bson.M) bson.M {
	return NormalizeDocument(doc)
}
