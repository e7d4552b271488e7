package dataset

import (
	"fmt"
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Values returns every value found at a dotted path, descending into arrays
// the way a multikey index does. A missing field yields a single nil, which
// is how a unique index sees it.
func Values(doc bson.D, path string) []any {
	out := collect(doc, strings.Split(path, "."))
	if len(out) == 0 {
		return []any{nil}
	}
	return out
}

func collect(v any, path []string) []any {
	if len(path) == 0 {
		if arr, ok := asArray(v); ok {
			return arr
		}
		return []any{v}
	}

	switch cur := v.(type) {
	case bson.D:
		for _, e := range cur {
			if e.Key == path[0] {
				return collect(e.Value, path[1:])
			}
		}
		return nil
	case bson.M:
		next, ok := cur[path[0]]
		if !ok {
			return nil
		}
		return collect(next, path[1:])
	}

	if arr, ok := asArray(v); ok {
		var out []any
		for _, item := range arr {
			out = append(out, collect(item, path)...)
		}
		return out
	}
	return nil
}

func asArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case bson.A:
		return arr, true
	case []any:
		return arr, true
	}
	return nil, false
}

// KeyOf renders a value so that values a unique index would treat as equal
// render the same. Numbers compare by value regardless of BSON type.
func KeyOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "s:" + x
	case bool:
		return fmt.Sprintf("b:%t", x)
	case int:
		return fmt.Sprintf("n:%d", x)
	case int32:
		return fmt.Sprintf("n:%d", x)
	case int64:
		return fmt.Sprintf("n:%d", x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return fmt.Sprintf("n:%d", int64(x))
		}
		return fmt.Sprintf("n:%g", x)
	case primitive.DateTime:
		return fmt.Sprintf("d:%d", int64(x))
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// BusinessKey returns the single value a document carries in field key
func BusinessKey(doc bson.D, key string) (any, error) {
	vals := Values(doc, key)
	if len(vals) != 1 {
		return nil, fmt.Errorf("key %q resolves to %d values", key, len(vals))
	}
	if vals[0] == nil {
		return nil, fmt.Errorf("key %q is missing", key)
	}
	return vals[0], nil
}
