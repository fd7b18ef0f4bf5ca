package snapshots

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"biomrk-backend/internal/shared/telemetry"
)

func TestReaderReturnsSingleRow(t *testing.T) {
	row := RawRow{AnalysisID: "a1", CancerCode: "BRCA", LogTimestamp: 200}
	r := NewSnapshotReader(&fakeStore{rows: map[int64][]RawRow{200: {row}}})

	got, err := r.Read(context.Background(), "BRCA", 200)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.AnalysisID != "a1" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestReaderZeroRowsIsMalformed(t *testing.T) {
	r := NewSnapshotReader(&fakeStore{rows: map[int64][]RawRow{}})

	_, err := r.Read(context.Background(), "BRCA", 200)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestReaderDuplicateRowsUsesFirstAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	telemetry.SetLogger(zap.New(core))
	t.Cleanup(func() { telemetry.SetLogger(zap.NewNop()) })

	rows := []RawRow{
		{AnalysisID: "first", CancerCode: "BRCA", LogTimestamp: 200},
		{AnalysisID: "second", CancerCode: "BRCA", LogTimestamp: 200},
	}
	r := NewSnapshotReader(&fakeStore{rows: map[int64][]RawRow{200: rows}})

	got, err := r.Read(context.Background(), "BRCA", 200)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.AnalysisID != "first" {
		t.Fatalf("expected first row, got %q", got.AnalysisID)
	}
	warnings := logs.FilterMessage("snapshot.duplicate_rows").All()
	if len(warnings) != 1 {
		t.Fatalf("expected one duplicate warning, got %d", len(warnings))
	}
	if warnings[0].ContextMap()["rows"] != int64(2) {
		t.Fatalf("expected rows=2, got %v", warnings[0].ContextMap()["rows"])
	}
}

func TestReaderStoreErrors(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		cause := errors.New("timeout")
		r := NewSnapshotReader(&fakeStore{readErr: cause})
		_, err := r.Read(context.Background(), "BRCA", 1)
		if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, cause) {
			t.Fatalf("expected wrapped ErrStorageUnavailable, got %v", err)
		}
	})
	t.Run("malformed passes through", func(t *testing.T) {
		r := NewSnapshotReader(&fakeStore{readErr: fmt.Errorf("%w: bad part", ErrMalformedRecord)})
		_, err := r.Read(context.Background(), "BRCA", 1)
		if !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("expected ErrMalformedRecord, got %v", err)
		}
		if errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("malformed record must not read as storage failure: %v", err)
		}
	})
}

func TestReaderRejectsRowFromOtherPartition(t *testing.T) {
	rows := []RawRow{{AnalysisID: "x", CancerCode: "LUAD", LogTimestamp: 200}}
	r := NewSnapshotReader(&fakeStore{rows: map[int64][]RawRow{200: rows}})

	_, err := r.Read(context.Background(), "BRCA", 200)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}
