package snapshots

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

// Kind tags a DecodedValue.
type Kind int

const (
	// KindAbsent is the zero value: the field was not in the row.
	KindAbsent Kind = iota
	// KindStructured holds a map/sequence (or any successfully parsed document).
	KindStructured
	// KindRaw holds the original value when structured decoding was not possible.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindRaw:
		return "raw"
	default:
		return "absent"
	}
}

// DecodedValue is the result of decoding one semi-structured field: either
// Structured(parsed) or Raw(original). Callers switch on Kind instead of
// inspecting the runtime type of Value.
type DecodedValue struct {
	kind  Kind
	value any
}

// Structured wraps an already structured value.
func Structured(v any) DecodedValue {
	return DecodedValue{kind: KindStructured, value: v}
}

// Raw wraps a value that is kept in its original form.
func Raw(v any) DecodedValue {
	return DecodedValue{kind: KindRaw, value: v}
}

// Kind reports which variant the value holds.
func (d DecodedValue) Kind() Kind { return d.kind }

// IsStructured reports whether decoding produced a structured value.
func (d DecodedValue) IsStructured() bool { return d.kind == KindStructured }

// Value returns the wrapped value.
func (d DecodedValue) Value() any { return d.value }

// Lookup resolves a path inside a structured value. Raw and absent values never match.
func (d DecodedValue) Lookup(path ...string) (any, bool) {
	if d.kind != KindStructured {
		return nil, false
	}
	return Lookup(d.value, path...)
}

// MarshalJSON renders the wrapped value without the tag.
func (d DecodedValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.value)
}

// Decode turns a field value into a DecodedValue. Containers pass through as
// Structured; strings and byte slices are parsed as JSON and fall back to Raw
// on any parse failure. Decode never fails.
func Decode(value any) DecodedValue {
	switch v := value.(type) {
	case nil:
		return Raw(nil)
	case map[string]any, []any:
		return Structured(v)
	case string:
		if parsed, ok := parseDocument([]byte(v)); ok {
			return Structured(parsed)
		}
		return Raw(v)
	case json.RawMessage:
		if parsed, ok := parseDocument(v); ok {
			return Structured(parsed)
		}
		return Raw(string(v))
	case []byte:
		if parsed, ok := parseDocument(v); ok {
			return Structured(parsed)
		}
		return Raw(string(v))
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return Structured(value)
	}
	return Raw(value)
}

// DecodeRow decodes every semi-structured column present in the row.
func DecodeRow(row RawRow) map[string]DecodedValue {
	out := make(map[string]DecodedValue, len(SemiStructuredFields))
	for _, name := range SemiStructuredFields {
		raw, ok := row.Fields[name]
		if !ok || raw == nil {
			continue
		}
		out[name] = Decode(raw)
	}
	return out
}

// parseDocument decodes exactly one JSON document, keeping numbers as json.Number
// so integer and float representations pass through unchanged.
func parseDocument(data []byte) (any, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return out, true
}
