package snapshots

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps analysis rows in memory and is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]RawRow
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]RawRow)}
}

// Append stores a row after any rows already stored for the same partition.
func (s *MemoryStore) Append(ctx context.Context, row RawRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row.Fields = maps.Clone(row.Fields)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.CancerCode] = append(s.rows[row.CancerCode], row)
	return nil
}

// ListVersions returns versions in insertion order.
func (s *MemoryStore) ListVersions(ctx context.Context, cancerCode string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []int64
	for _, row := range s.rows[cancerCode] {
		if _, ok := seen[row.LogTimestamp]; ok {
			continue
		}
		seen[row.LogTimestamp] = struct{}{}
		out = append(out, row.LogTimestamp)
	}
	return out, nil
}

// ReadRows returns rows for the partition in insertion order.
func (s *MemoryStore) ReadRows(ctx context.Context, cancerCode string, version int64) ([]RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RawRow
	for _, row := range s.rows[cancerCode] {
		if row.LogTimestamp == version {
			out = append(out, row)
		}
	}
	return out, nil
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Appender = (*MemoryStore)(nil)
)
