package snapshots

import "errors"

var (
	// ErrNoPartitionFound means the cancer code has no versions in the store.
	ErrNoPartitionFound = errors.New("no partition found")
	// ErrStorageUnavailable wraps transport, auth and timeout failures reaching the store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedRecord means the store contents contradict the resolved partition
	// (no row for a listed version, mismatched partition columns, undecodable row).
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidCancerCode rejects empty or path-unsafe partition keys.
	ErrInvalidCancerCode = errors.New("invalid cancer code")
)
