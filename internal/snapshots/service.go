package snapshots

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"biomrk-backend/internal/shared/metrics"
	"biomrk-backend/internal/shared/telemetry"
)

// Service assembles analysis snapshots. It holds no per-request state and is
// safe to share between concurrent requests.
type Service struct {
	Resolver *PartitionResolver
	Reader   *SnapshotReader
	// ReadTimeout bounds the store calls of one assembly. Zero leaves the caller's context as is.
	ReadTimeout time.Duration
}

// NewService wires a resolver and reader over the same store.
func NewService(store Store, readTimeout time.Duration) *Service {
	return &Service{
		Resolver:    NewPartitionResolver(store),
		Reader:      NewSnapshotReader(store),
		ReadTimeout: readTimeout,
	}
}

// Assemble builds the snapshot of the latest analysis run for cancerCode.
func (s *Service) Assemble(ctx context.Context, cancerCode string) (Snapshot, error) {
	return s.assemble(ctx, cancerCode, nil)
}

// AssembleVersion builds the snapshot of a specific version. The version must exist.
func (s *Service) AssembleVersion(ctx context.Context, cancerCode string, version int64) (Snapshot, error) {
	return s.assemble(ctx, cancerCode, &version)
}

// Versions lists the versions stored for cancerCode in ascending order.
func (s *Service) Versions(ctx context.Context, cancerCode string) ([]int64, error) {
	readCtx, cancel := s.bound(ctx)
	defer cancel()
	return s.Resolver.ListVersions(readCtx, cancerCode)
}

const tracerName = "biomrk-backend/internal/snapshots"

func (s *Service) assemble(ctx context.Context, cancerCode string, pinned *int64) (snap Snapshot, err error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "snapshots.Assemble",
		trace.WithAttributes(attribute.String("cancer_code", cancerCode)))
	defer func() {
		result := resultLabel(err)
		metrics.ObserveAssembleDuration(time.Since(start))
		metrics.IncAssemble(result)
		span.SetAttributes(attribute.String("result", result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		span.End()
	}()

	code, err := NormalizeCancerCode(cancerCode)
	if err != nil {
		return Snapshot{}, err
	}

	row, err := s.fetch(ctx, code, pinned)
	if err != nil {
		return Snapshot{}, err
	}
	span.SetAttributes(attribute.Int64("log_timestamp", row.LogTimestamp))

	snap, notes := Build(row)
	if len(notes) > 0 {
		telemetry.Warn("snapshot.pivot_skipped", map[string]any{
			"cancer_code":   code,
			"log_timestamp": row.LogTimestamp,
			"notes":         notes,
		})
	}
	telemetry.Debug("snapshot.assembled", map[string]any{
		"cancer_code":   code,
		"log_timestamp": row.LogTimestamp,
		"analysis_id":   row.AnalysisID,
		"components":    snap.PCAvgExprsPivot.Len(),
		"duration_ms":   float64(time.Since(start).Microseconds()) / 1000.0,
	})
	return snap, nil
}

// fetch runs the store-facing steps under one read budget: list versions, pick
// the latest (or check the pinned one), read the row.
func (s *Service) fetch(ctx context.Context, code string, pinned *int64) (RawRow, error) {
	readCtx, cancel := s.bound(ctx)
	defer cancel()

	versions, err := s.Resolver.ListVersions(readCtx, code)
	if err != nil {
		return RawRow{}, err
	}
	latest, err := SelectLatest(versions)
	if err != nil {
		return RawRow{}, fmt.Errorf("%w: cancer_code=%s", err, code)
	}
	version := latest
	if pinned != nil {
		if !slices.Contains(versions, *pinned) {
			return RawRow{}, fmt.Errorf("%w: cancer_code=%s log_timestamp=%d", ErrNoPartitionFound, code, *pinned)
		}
		version = *pinned
	}
	return s.Reader.Read(readCtx, code, version)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ReadTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.ReadTimeout)
}

// Build decodes a row and derives the pivot tables. It never fails; the
// returned notes describe pc_avg_exprs entries that could not be pivoted.
func Build(row RawRow) (Snapshot, []string) {
	decoded := DecodeRow(row)
	snap := Snapshot{
		AnalysisID:   row.AnalysisID,
		CancerCode:   row.CancerCode,
		LogTimestamp: row.LogTimestamp,
		Config:       fieldPtr(decoded, FieldConfig),
		DirSummary:   fieldPtr(decoded, FieldDirSummary),
		LLMSummary:   fieldPtr(decoded, FieldLLMSummary),
		Results:      fieldPtr(decoded, FieldResults),
		PCAvgExprs:   fieldPtr(decoded, FieldPCAvgExprs),
	}
	pivots, notes := Flatten(decoded[FieldPCAvgExprs])
	snap.PCAvgExprsPivot = pivots
	return snap, notes
}

func fieldPtr(decoded map[string]DecodedValue, name string) *DecodedValue {
	v, ok := decoded[name]
	if !ok {
		return nil
	}
	return &v
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrInvalidCancerCode):
		return metrics.ResultInvalid
	case errors.Is(err, ErrNoPartitionFound):
		return metrics.ResultNoPartition
	case errors.Is(err, ErrMalformedRecord):
		return metrics.ResultMalformed
	case errors.Is(err, ErrStorageUnavailable):
		return metrics.ResultStoreUnavailable
	default:
		return metrics.ResultError
	}
}
