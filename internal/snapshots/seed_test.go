package snapshots

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestReadSeed(t *testing.T) {
	input := `{"analysis_id":"r1","cancer_code":"BRCA","log_timestamp":100,"config":{"a":1}}
{"analysis_id":"r2","cancer_code":"BRCA","log_timestamp":"200","pc_avg_exprs":"[]"}
`
	rows, err := ReadSeed(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].LogTimestamp != 200 || rows[1].Fields[FieldPCAvgExprs] != "[]" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
	if _, ok := rows[0].Fields[FieldConfig].(map[string]any); !ok {
		t.Fatalf("expected inline config object, got %T", rows[0].Fields[FieldConfig])
	}
}

func TestReadSeedRequiresPartitionColumns(t *testing.T) {
	for _, input := range []string{
		`{"log_timestamp":1}`,
		`{"cancer_code":"BRCA"}`,
		`{"cancer_code":"a/b","log_timestamp":1}`,
		`{"cancer_code":"BRCA","log_timestamp":1.5}`,
	} {
		if _, err := ReadSeed(strings.NewReader(input)); err == nil {
			t.Fatalf("expected error for %s", input)
		}
	}
	if _, err := ReadSeed(strings.NewReader(`{"cancer_code":`)); err == nil {
		t.Fatalf("expected syntax error")
	}
}

type failingAppender struct{ after int }

func (f *failingAppender) Append(ctx context.Context, row RawRow) error {
	if f.after == 0 {
		return errors.New("disk full")
	}
	f.after--
	return nil
}

func TestSeedStopsAtFirstFailure(t *testing.T) {
	rows := []RawRow{{CancerCode: "A"}, {CancerCode: "B"}, {CancerCode: "C"}}
	n, err := Seed(context.Background(), &failingAppender{after: 2}, rows)
	if err == nil {
		t.Fatalf("expected error")
	}
	if n != 2 {
		t.Fatalf("expected 2 appended, got %d", n)
	}

	store := NewMemoryStore()
	if n, err := Seed(context.Background(), store, rows); err != nil || n != 3 {
		t.Fatalf("expected 3 appended, got %d %v", n, err)
	}
}
