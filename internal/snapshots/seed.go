package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ReadSeed decodes a stream of JSON row documents, one analysis run each, in the
// same shape the partitioned store writes. cancer_code and log_timestamp are required.
func ReadSeed(r io.Reader) ([]RawRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []RawRow
	for n := 1; ; n++ {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("seed row %d: %w", n, err)
		}
		row, err := seedRow(doc)
		if err != nil {
			return nil, fmt.Errorf("seed row %d: %w", n, err)
		}
		out = append(out, row)
	}
}

// Seed appends rows in order and stops at the first failure.
func Seed(ctx context.Context, dst Appender, rows []RawRow) (int, error) {
	for i, row := range rows {
		if err := dst.Append(ctx, row); err != nil {
			return i, fmt.Errorf("append %s/%d: %w", row.CancerCode, row.LogTimestamp, err)
		}
	}
	return len(rows), nil
}

func seedRow(doc map[string]any) (RawRow, error) {
	code, ok := asString(doc[cancerCodeColumn])
	if !ok {
		return RawRow{}, fmt.Errorf("%w: cancer_code is required", ErrMalformedRecord)
	}
	code, err := NormalizeCancerCode(code)
	if err != nil {
		return RawRow{}, err
	}
	version, ok := asInt64(doc[logTimestampColumn])
	if !ok {
		return RawRow{}, fmt.Errorf("%w: log_timestamp is required", ErrMalformedRecord)
	}
	return rowFromDocument(doc, code, version)
}
