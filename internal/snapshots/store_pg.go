package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGStore reads the analysis log from the Postgres analysis_log table.
type PGStore struct {
	DB *sql.DB
}

// ListVersions returns the distinct log timestamps stored for a cancer code.
func (s *PGStore) ListVersions(ctx context.Context, cancerCode string) ([]int64, error) {
	const query = `
SELECT DISTINCT log_timestamp
FROM analysis_log
WHERE cancer_code = $1
ORDER BY log_timestamp`
	rows, err := s.DB.QueryContext(ctx, query, cancerCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ReadRows returns every row of a partition in insertion order.
func (s *PGStore) ReadRows(ctx context.Context, cancerCode string, version int64) ([]RawRow, error) {
	const query = `
SELECT analysis_id, cancer_code, log_timestamp, config, dir_summary, llm_summary, results, pc_avg_exprs
FROM analysis_log
WHERE cancer_code = $1 AND log_timestamp = $2
ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, cancerCode, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var row RawRow
		cols := make([]sql.NullString, len(SemiStructuredFields))
		dest := []any{&row.AnalysisID, &row.CancerCode, &row.LogTimestamp}
		for i := range cols {
			dest = append(dest, &cols[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row.Fields = make(map[string]any, len(cols))
		for i, name := range SemiStructuredFields {
			if cols[i].Valid {
				row.Fields[name] = cols[i].String
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Append inserts a new analysis run. Structured field values are stored as JSON text.
func (s *PGStore) Append(ctx context.Context, row RawRow) error {
	const query = `
INSERT INTO analysis_log (
	analysis_id, cancer_code, log_timestamp, config, dir_summary, llm_summary, results, pc_avg_exprs
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	args := []any{row.AnalysisID, row.CancerCode, row.LogTimestamp}
	for _, name := range SemiStructuredFields {
		text, err := fieldText(row.Fields[name])
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		args = append(args, text)
	}
	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}

// fieldText keeps strings as written and serializes anything else to JSON.
func fieldText(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: t, Valid: true}, nil
	case DecodedValue:
		if t.Kind() == KindAbsent {
			return sql.NullString{}, nil
		}
		return fieldText(t.Value())
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

var (
	_ Store    = (*PGStore)(nil)
	_ Appender = (*PGStore)(nil)
)
