package snapshots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"biomrk-backend/internal/shared/storage/object"
	"biomrk-backend/internal/shared/telemetry"
)

const (
	cancerCodeColumn   = "cancer_code"
	logTimestampColumn = "log_timestamp"
	analysisIDColumn   = "analysis_id"
)

// PartitionedStore reads an analysis log laid out as Hive-style partitions on an
// object store:
//
//	<table>/cancer_code=<code>/log_timestamp=<ts>/<part>.json
//
// Each part file holds one JSON object per line. Partition columns missing from a
// row are taken from the path.
type PartitionedStore struct {
	Objects object.ObjectStore
	Table   string
}

// NewPartitionedStore constructs a PartitionedStore rooted at table.
func NewPartitionedStore(objects object.ObjectStore, table string) *PartitionedStore {
	return &PartitionedStore{Objects: objects, Table: strings.Trim(table, "/")}
}

// ListVersions parses log_timestamp partition directories under the cancer code.
// A directory only counts once it holds a readable part file, so markers such as
// _SUCCESS and in-flight temp objects never surface as versions.
func (s *PartitionedStore) ListVersions(ctx context.Context, cancerCode string) ([]int64, error) {
	prefix := s.partitionPrefix(cancerCode)
	infos, err := s.Objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var out []int64
	for _, info := range infos {
		if !isPartFile(info.Key) {
			continue
		}
		rest := strings.TrimPrefix(info.Key, prefix)
		dir, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		version, ok := parsePartitionValue(dir, logTimestampColumn)
		if !ok {
			continue
		}
		if _, dup := seen[version]; dup {
			continue
		}
		seen[version] = struct{}{}
		out = append(out, version)
	}
	return out, nil
}

// ReadRows decodes every part file of the partition in key order.
func (s *PartitionedStore) ReadRows(ctx context.Context, cancerCode string, version int64) ([]RawRow, error) {
	prefix := s.versionPrefix(cancerCode, version)
	infos, err := s.Objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var out []RawRow
	for _, info := range infos {
		if !isPartFile(info.Key) {
			continue
		}
		rows, err := s.readPart(ctx, info.Key, cancerCode, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Append writes the row as a new single-line part file.
func (s *PartitionedStore) Append(ctx context.Context, row RawRow) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(documentFromRow(row)); err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	key := s.versionPrefix(row.CancerCode, row.LogTimestamp) + "part-" + uuid.NewString() + ".json"
	if _, err := s.Objects.SaveWithKey(ctx, key, "application/x-ndjson", &buf); err != nil {
		return err
	}
	telemetry.Info("snapshot.row_appended", map[string]any{
		"key":           key,
		"cancer_code":   row.CancerCode,
		"log_timestamp": row.LogTimestamp,
	})
	return nil
}

func (s *PartitionedStore) readPart(ctx context.Context, key, cancerCode string, version int64) ([]RawRow, error) {
	rc, err := s.Objects.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	dec.UseNumber()
	var out []RawRow
	for line := 1; ; line++ {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %s row %d: %v", ErrMalformedRecord, key, line, err)
			}
			return nil, err
		}
		row, err := rowFromDocument(doc, cancerCode, version)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", key, line, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// documentFromRow is the JSON line written for a row.
func documentFromRow(row RawRow) map[string]any {
	doc := make(map[string]any, len(row.Fields)+3)
	for _, name := range SemiStructuredFields {
		v, ok := row.Fields[name]
		if !ok || v == nil {
			continue
		}
		if dv, ok := v.(DecodedValue); ok {
			v = dv.Value()
		}
		doc[name] = v
	}
	doc[analysisIDColumn] = row.AnalysisID
	doc[cancerCodeColumn] = row.CancerCode
	doc[logTimestampColumn] = row.LogTimestamp
	return doc
}

// rowFromDocument fills partition columns from the path and checks that any
// partition values present in the document agree with it.
func rowFromDocument(doc map[string]any, cancerCode string, version int64) (RawRow, error) {
	if doc == nil {
		return RawRow{}, fmt.Errorf("%w: row is null", ErrMalformedRecord)
	}
	row := RawRow{CancerCode: cancerCode, LogTimestamp: version, Fields: make(map[string]any)}

	if v, ok := doc[cancerCodeColumn]; ok && v != nil {
		code, _ := asString(v)
		if code != cancerCode {
			return RawRow{}, fmt.Errorf("%w: cancer_code %v outside partition %s", ErrMalformedRecord, v, cancerCode)
		}
	}
	if v, ok := doc[logTimestampColumn]; ok && v != nil {
		ts, ok := asInt64(v)
		if !ok || ts != version {
			return RawRow{}, fmt.Errorf("%w: log_timestamp %v outside partition %d", ErrMalformedRecord, v, version)
		}
	}
	if v, ok := doc[analysisIDColumn]; ok && v != nil {
		id, ok := asString(v)
		if !ok {
			return RawRow{}, fmt.Errorf("%w: analysis_id has type %T", ErrMalformedRecord, v)
		}
		row.AnalysisID = id
	}
	for _, name := range SemiStructuredFields {
		if v, ok := doc[name]; ok && v != nil {
			row.Fields[name] = v
		}
	}
	return row, nil
}

func (s *PartitionedStore) partitionPrefix(cancerCode string) string {
	p := cancerCodeColumn + "=" + cancerCode + "/"
	if s.Table == "" {
		return p
	}
	return s.Table + "/" + p
}

func (s *PartitionedStore) versionPrefix(cancerCode string, version int64) string {
	return s.partitionPrefix(cancerCode) + logTimestampColumn + "=" + strconv.FormatInt(version, 10) + "/"
}

func parsePartitionValue(segment, column string) (int64, bool) {
	raw, ok := strings.CutPrefix(segment, column+"=")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isPartFile(key string) bool {
	base := key[strings.LastIndex(key, "/")+1:]
	if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".jsonl") || strings.HasSuffix(base, ".ndjson")
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), float64(int64(n)) == n
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

var (
	_ Store    = (*PartitionedStore)(nil)
	_ Appender = (*PartitionedStore)(nil)
)
