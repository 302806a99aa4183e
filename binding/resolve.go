// Package binding resolves dotted paths such as "invoice.total" against the
// business data a template is rendered with, and shapes the resolved values
// into display strings.
//
// Resolution never fails: a missing segment yields nil, which formats as an
// empty string.
package binding

import (
	"reflect"
	"strings"
)

// Context is the data a template is rendered against: nested maps, lists
// and scalars with the top-level keys "invoice", "customer" and "company".
type Context map[string]any

// Resolve walks ctx along the dot-separated segments of path and returns the
// value found there. It returns nil for an empty path or when any segment is
// missing. Only static field access is supported; there are no indices.
func Resolve(path string, ctx Context) any {
	if path == "" || ctx == nil {
		return nil
	}
	var cur any = map[string]any(ctx)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		if cur, ok = m[seg]; !ok {
			return nil
		}
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return m, true
	}
	return nil, false
}

// List converts a resolved value into a list of rows. Values that are not
// slices yield nil.
func List(v any) []any {
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, row := range l {
			out[i] = row
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Field returns the value of key in a table row. Rows that are not maps
// have no fields.
func Field(row any, key string) any {
	if m, ok := asMap(row); ok {
		return Resolve(key, Context(m))
	}
	return nil
}
