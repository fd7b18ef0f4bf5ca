package snapshots

import (
	"context"
	"sync/atomic"
)

// fakeStore answers from fixed data and counts calls.
type fakeStore struct {
	versions []int64
	rows     map[int64][]RawRow
	listErr  error
	readErr  error
	// block makes ReadRows wait for ctx to end.
	block bool

	listCalls atomic.Int32
	readCalls atomic.Int32
}

func (f *fakeStore) ListVersions(ctx context.Context, cancerCode string) ([]int64, error) {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.versions, nil
}

func (f *fakeStore) ReadRows(ctx context.Context, cancerCode string, version int64) ([]RawRow, error) {
	f.readCalls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows[version], nil
}
