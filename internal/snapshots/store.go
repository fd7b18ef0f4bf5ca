package snapshots

import "context"

// Store is the read contract of the analysis log. Implementations must be safe
// for concurrent use; the same Store is shared by all in-flight assemblies.
type Store interface {
	// ListVersions returns the log_timestamp values stored under cancerCode, in any order.
	ListVersions(ctx context.Context, cancerCode string) ([]int64, error)
	// ReadRows returns every row stored for (cancerCode, version) in store order.
	ReadRows(ctx context.Context, cancerCode string, version int64) ([]RawRow, error)
}

// Appender is implemented by stores that accept new analysis runs.
type Appender interface {
	Append(ctx context.Context, row RawRow) error
}
