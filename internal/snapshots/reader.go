package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biomrk-backend/internal/shared/metrics"
	"biomrk-backend/internal/shared/telemetry"
)

// SnapshotReader fetches the row of a resolved partition.
type SnapshotReader struct {
	Store Store
}

// NewSnapshotReader constructs a SnapshotReader over store.
func NewSnapshotReader(store Store) *SnapshotReader {
	return &SnapshotReader{Store: store}
}

// Read returns the row stored for (cancerCode, version). The version is trusted to
// come from the resolver. Zero rows is a malformed record; several rows is only
// reported, and the first row in store order is used. One attempt is made.
func (r *SnapshotReader) Read(ctx context.Context, cancerCode string, version int64) (RawRow, error) {
	start := time.Now()
	rows, err := r.Store.ReadRows(ctx, cancerCode, version)
	metrics.ObserveStoreRead("read", time.Since(start))
	if err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			return RawRow{}, err
		}
		return RawRow{}, fmt.Errorf("%w: read cancer_code=%s log_timestamp=%d: %w", ErrStorageUnavailable, cancerCode, version, err)
	}

	switch {
	case len(rows) == 0:
		return RawRow{}, fmt.Errorf("%w: no row for cancer_code=%s log_timestamp=%d", ErrMalformedRecord, cancerCode, version)
	case len(rows) > 1:
		metrics.IncDuplicateRows()
		telemetry.Warn("snapshot.duplicate_rows", map[string]any{
			"cancer_code":   cancerCode,
			"log_timestamp": version,
			"rows":          len(rows),
			"analysis_id":   rows[0].AnalysisID,
		})
	}

	row := rows[0]
	if row.CancerCode != cancerCode || row.LogTimestamp != version {
		return RawRow{}, fmt.Errorf("%w: row partition (%q, %d) does not match requested (%q, %d)",
			ErrMalformedRecord, row.CancerCode, row.LogTimestamp, cancerCode, version)
	}
	return row, nil
}
