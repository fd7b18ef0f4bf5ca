package snapshots

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeParsesJSONString(t *testing.T) {
	t.Parallel()

	got := Decode(`{"a":1}`)
	if got.Kind() != KindStructured {
		t.Fatalf("expected structured, got %s", got.Kind())
	}
	want := map[string]any{"a": json.Number("1")}
	if diff := cmp.Diff(want, got.Value()); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
}

func TestDecodeKeepsRawOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{name: "broken object", input: "{not json", want: "{not json"},
		{name: "plain text", input: "Tumor shows strong ESR1 signal.", want: "Tumor shows strong ESR1 signal."},
		{name: "trailing data", input: `{"a":1} {"b":2}`, want: `{"a":1} {"b":2}`},
		{name: "empty", input: "   ", want: "   "},
		{name: "broken bytes", input: []byte("[1,"), want: "[1,"},
		{name: "integer scalar", input: int64(7), want: int64(7)},
		{name: "bool scalar", input: true, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decode(tt.input)
			if got.Kind() != KindRaw {
				t.Fatalf("expected raw, got %s", got.Kind())
			}
			if diff := cmp.Diff(tt.want, got.Value()); diff != "" {
				t.Fatalf("unexpected raw value (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodePassesContainersThrough(t *testing.T) {
	t.Parallel()

	m := map[string]any{"top_genes": []any{"ESR1"}}
	if got := Decode(m); got.Kind() != KindStructured {
		t.Fatalf("expected map to stay structured, got %s", got.Kind())
	}
	typed := []map[string]any{{"pc_name": "PC1"}}
	got := Decode(typed)
	if got.Kind() != KindStructured {
		t.Fatalf("expected typed slice to be structured, got %s", got.Kind())
	}
	if diff := cmp.Diff(typed, got.Value()); diff != "" {
		t.Fatalf("container should pass through unchanged:\n%s", diff)
	}
}

func TestDecodeKeepsNumberRepresentation(t *testing.T) {
	t.Parallel()

	got := Decode(`[1, 2.50, 1e3]`)
	out, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `[1,2.50,1e3]` {
		t.Fatalf("expected numbers to pass through, got %s", out)
	}
}

func TestDecodeRowOmitsMissingFields(t *testing.T) {
	t.Parallel()

	row := RawRow{
		CancerCode:   "BRCA",
		LogTimestamp: 200,
		Fields: map[string]any{
			FieldConfig:     `{"design":"~subgroup"}`,
			FieldLLMSummary: "free text",
			FieldResults:    nil,
		},
	}
	decoded := DecodeRow(row)
	if len(decoded) != 2 {
		t.Fatalf("expected 2 decoded fields, got %d", len(decoded))
	}
	if !decoded[FieldConfig].IsStructured() {
		t.Fatalf("expected config to be structured")
	}
	if decoded[FieldLLMSummary].Kind() != KindRaw {
		t.Fatalf("expected llm_summary to stay raw")
	}
	if _, ok := decoded[FieldResults]; ok {
		t.Fatalf("expected NULL results to be omitted")
	}
}

func TestDecodedValueLookup(t *testing.T) {
	t.Parallel()

	v := Decode(`{"summary":{"n_up":12}}`)
	got, ok := v.Lookup("summary", "n_up")
	if !ok || got != json.Number("12") {
		t.Fatalf("expected n_up=12, got %v ok=%v", got, ok)
	}
	if _, ok := Raw("{").Lookup("summary"); ok {
		t.Fatalf("raw values must not resolve paths")
	}
}
