package snapshots

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// SkipChildren can be returned by a VisitFunc to stop descending into the current node.
var SkipChildren = errors.New("skip children")

// VisitFunc is called for every node of a structured value. path holds map keys and
// sequence indexes from the root; it must not be retained after the call returns.
type VisitFunc func(path []string, value any) error

// Walk traverses v depth-first. Map keys are visited in sorted order so the walk is
// deterministic; sequences are visited in order.
func Walk(v any, fn VisitFunc) error {
	return walk(nil, v, fn)
}

func walk(path []string, v any, fn VisitFunc) error {
	if err := fn(path, v); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	if m, ok := asMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := walk(append(path, k), m[k], fn); err != nil {
				return err
			}
		}
		return nil
	}
	if items, ok := asSlice(v); ok {
		for i, item := range items {
			if err := walk(append(path, strconv.Itoa(i)), item, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Leaf is a scalar found by Leaves.
type Leaf struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Leaves flattens a structured value into dotted-path scalars ("a.b.0.c").
// Empty containers are reported as leaves so no key disappears from the listing.
func Leaves(v any) []Leaf {
	var out []Leaf
	_ = Walk(v, func(path []string, value any) error {
		if m, ok := asMap(value); ok && len(m) > 0 {
			return nil
		}
		if s, ok := asSlice(value); ok && len(s) > 0 {
			return nil
		}
		out = append(out, Leaf{Path: strings.Join(path, "."), Value: value})
		return nil
	})
	return out
}

// Lookup resolves path segments against nested maps and sequences. Sequence
// segments are decimal indexes.
func Lookup(v any, path ...string) (any, bool) {
	cur := v
	for _, seg := range path {
		if m, ok := asMap(cur); ok {
			next, found := m[seg]
			if !found {
				return nil, false
			}
			cur = next
			continue
		}
		if items, ok := asSlice(cur); ok {
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(items) {
				return nil, false
			}
			cur = items[idx]
			continue
		}
		return nil, false
	}
	return cur, true
}

// asMap views string-keyed maps of any element type as map[string]any.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSlice views sequences of any element type (except bytes) as []any.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil, []byte, json.RawMessage:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asString accepts strings and numbers as identifiers.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int, int32, int64:
		return fmt.Sprint(s), true
	}
	return "", false
}
