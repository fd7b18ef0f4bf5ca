package snapshots

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"biomrk-backend/internal/shared/metrics"
)

// PartitionResolver lists the versions stored for a cancer code and picks the latest.
type PartitionResolver struct {
	Store Store
}

// NewPartitionResolver constructs a PartitionResolver over store.
func NewPartitionResolver(store Store) *PartitionResolver {
	return &PartitionResolver{Store: store}
}

// ListVersions returns the distinct versions under cancerCode in ascending order.
func (r *PartitionResolver) ListVersions(ctx context.Context, cancerCode string) ([]int64, error) {
	code, err := NormalizeCancerCode(cancerCode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	versions, err := r.Store.ListVersions(ctx, code)
	metrics.ObserveStoreRead("list_versions", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: list versions cancer_code=%s: %w", ErrStorageUnavailable, code, err)
	}

	out := slices.Clone(versions)
	slices.Sort(out)
	return slices.Compact(out), nil
}

// SelectLatest returns the maximum version.
func SelectLatest(versions []int64) (int64, error) {
	if len(versions) == 0 {
		return 0, ErrNoPartitionFound
	}
	return slices.Max(versions), nil
}

// NormalizeCancerCode trims the code and rejects values that cannot name a partition.
func NormalizeCancerCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCancerCode)
	}
	if strings.ContainsAny(code, "/\\=") || code == "." || code == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidCancerCode, code)
	}
	for _, r := range code {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: %q", ErrInvalidCancerCode, code)
		}
	}
	return code, nil
}
