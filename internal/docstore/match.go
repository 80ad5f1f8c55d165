package docstore

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Match reports whether doc satisfies filter. The supported filter language is
// the subset of MongoDB query operators used by the data layer: implicit
// equality, $eq, $ne, $in, $nin, $gt, $gte, $lt, $lte, $exists, $regex with
// $options, and the logical $and, $or, $nor.
func Match(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		ok, err := matchKey(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(doc bson.M, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		clauses, err := filterList(key, cond)
		if err != nil {
			return false, err
		}
		return matchLogical(doc, key, clauses)
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("docstore: unsupported top level operator %s", key)
	}

	values, found := collect(doc, key)
	if ops, ok := operatorMap(cond); ok {
		for op, operand := range ops {
			matched, err := evalOperator(values, found, op, operand, ops)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	}
	return matchEquals(values, found, cond), nil
}

func matchLogical(doc bson.M, op string, clauses []bson.M) (bool, error) {
	switch op {
	case "$and":
		for _, clause := range clauses {
			ok, err := Match(doc, clause)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "$or":
		for _, clause := range clauses {
			ok, err := Match(doc, clause)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		for _, clause := range clauses {
			ok, err := Match(doc, clause)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	}
}

func filterList(op string, cond any) ([]bson.M, error) {
	items, ok := asSlice(cond)
	if !ok {
		return nil, fmt.Errorf("docstore: %s expects an array", op)
	}
	out := make([]bson.M, 0, len(items))
	for _, item := range items {
		clause, ok := asDocument(item)
		if !ok {
			return nil, fmt.Errorf("docstore: %s expects documents", op)
		}
		out = append(out, clause)
	}
	return out, nil
}

// operatorMap returns cond as an operator document when every key starts with $.
func operatorMap(cond any) (bson.M, bool) {
	doc, ok := asDocument(cond)
	if !ok || len(doc) == 0 {
		return nil, false
	}
	for key := range doc {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return doc, true
}

func evalOperator(values []any, found bool, op string, operand any, ops bson.M) (bool, error) {
	switch op {
	case "$eq":
		return matchEquals(values, found, operand), nil
	case "$ne":
		return !matchEquals(values, found, operand), nil
	case "$in":
		items, ok := asSlice(operand)
		if !ok {
			return false, fmt.Errorf("docstore: $in expects an array")
		}
		for _, item := range items {
			if matchEquals(values, found, item) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		items, ok := asSlice(operand)
		if !ok {
			return false, fmt.Errorf("docstore: $nin expects an array")
		}
		for _, item := range items {
			if matchEquals(values, found, item) {
				return false, nil
			}
		}
		return true, nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, value := range values {
			cmp, ok := Compare(value, operand)
			if !ok {
				continue
			}
			switch {
			case op == "$gt" && cmp > 0,
				op == "$gte" && cmp >= 0,
				op == "$lt" && cmp < 0,
				op == "$lte" && cmp <= 0:
				return true, nil
			}
		}
		return false, nil
	case "$exists":
		want, _ := operand.(bool)
		present := found
		return present == want, nil
	case "$regex":
		re, err := compileRegex(operand, ops["$options"])
		if err != nil {
			return false, err
		}
		for _, value := range values {
			if s, ok := value.(string); ok && re.MatchString(s) {
				return true, nil
			}
		}
		return false, nil
	case "$options":
		return true, nil
	default:
		return false, fmt.Errorf("docstore: unsupported operator %s", op)
	}
}

func compileRegex(pattern any, options any) (*regexp.Regexp, error) {
	var expr, flags string
	switch p := pattern.(type) {
	case string:
		expr = p
	case primitive.Regex:
		expr, flags = p.Pattern, p.Options
	case *regexp.Regexp:
		return p, nil
	default:
		return nil, fmt.Errorf("docstore: $regex expects a string pattern")
	}
	if o, ok := options.(string); ok {
		flags += o
	}

	var prefix strings.Builder
	for _, flag := range flags {
		switch flag {
		case 'i', 'm', 's':
			prefix.WriteRune(flag)
		}
	}
	if prefix.Len() > 0 {
		expr = "(?" + prefix.String() + ")" + expr
	}
	return regexp.Compile(expr)
}

func matchEquals(values []any, found bool, want any) bool {
	if want == nil {
		if !found {
			return true
		}
		for _, value := range values {
			if value == nil {
				return true
			}
		}
		return false
	}
	if re, ok := want.(*regexp.Regexp); ok {
		for _, value := range values {
			if s, ok := value.(string); ok && re.MatchString(s) {
				return true
			}
		}
		return false
	}
	if re, ok := want.(primitive.Regex); ok {
		compiled, err := compileRegex(re, nil)
		if err != nil {
			return false
		}
		return matchEquals(values, found, compiled)
	}
	for _, value := range values {
		if Equal(value, want) {
			return true
		}
	}
	return false
}

// collect returns the candidate values addressed by path, descending into
// arrays the way MongoDB does: an array field contributes each element as well
// as the array itself.
func collect(doc bson.M, path string) ([]any, bool) {
	return collectFrom(doc, strings.Split(path, "."))
}

func collectFrom(node any, segments []string) ([]any, bool) {
	if len(segments) == 0 {
		if items, ok := asSlice(node); ok {
			out := make([]any, 0, len(items)+1)
			out = append(out, items...)
			out = append(out, node)
			return out, true
		}
		return []any{node}, true
	}

	segment, rest := segments[0], segments[1:]
	if doc, ok := asDocument(node); ok {
		child, present := doc[segment]
		if !present {
			return nil, false
		}
		return collectFrom(child, rest)
	}

	if items, ok := asSlice(node); ok {
		if idx, err := strconv.Atoi(segment); err == nil {
			if idx < 0 || idx >= len(items) {
				return nil, false
			}
			return collectFrom(items[idx], rest)
		}
		var (
			out   []any
			found bool
		)
		for _, item := range items {
			values, ok := collectFrom(item, segments)
			if ok {
				found = true
				out = append(out, values...)
			}
		}
		return out, found
	}
	return nil, false
}

// Equal compares two stored values for equality across numeric widths.
func Equal(a, b any) bool {
	if cmp, ok := Compare(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Compare orders two scalar values of compatible types. The boolean result is
// false when the values cannot be ordered against each other.
func Compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if y, ok := toTime(b); ok {
			return x.Compare(y), true
		}
	case primitive.DateTime:
		if y, ok := toTime(b); ok {
			return x.Time().Compare(y), true
		}
	case primitive.ObjectID:
		switch y := b.(type) {
		case primitive.ObjectID:
			return strings.Compare(x.Hex(), y.Hex()), true
		case string:
			return strings.Compare(x.Hex(), y), true
		}
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
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
		return n, true
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asDocument(v any) (bson.M, bool) {
	switch doc := v.(type) {
	case bson.M:
		return doc, true
	case map[string]any:
		return bson.M(doc), true
	case bson.D:
		return doc.Map(), true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case bson.A:
		return []any(items), true
	case []bson.M:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	case []string:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}
