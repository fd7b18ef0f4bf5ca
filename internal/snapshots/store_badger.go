package snapshots

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps the analysis log in an embedded badger database. Keys are
//
//	log/<cancer_code>/<version>/<seq>
//
// with version and seq as 8-byte big-endian values, so a prefix scan returns
// versions in ascending order and rows in append order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var badgerSeqKey = []byte("seq/log")

// NewBadgerStore wraps an open database. Close releases the row sequence but
// leaves the database to its owner.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence(badgerSeqKey, 64)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases unused sequence leases.
func (s *BadgerStore) Close() error {
	return s.seq.Release()
}

func (s *BadgerStore) ListVersions(ctx context.Context, cancerCode string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := badgerCodePrefix(cancerCode)
	var out []int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if len(key) < len(prefix)+8 {
				continue
			}
			version := decodeSortableInt(key[len(prefix) : len(prefix)+8])
			if n := len(out); n > 0 && out[n-1] == version {
				continue
			}
			out = append(out, version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) ReadRows(ctx context.Context, cancerCode string, version int64) ([]RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := badgerVersionPrefix(cancerCode, version)
	var out []RawRow
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			dec := json.NewDecoder(bytes.NewReader(val))
			dec.UseNumber()
			var doc map[string]any
			if err := dec.Decode(&doc); err != nil {
				return fmt.Errorf("%w: key %x: %v", ErrMalformedRecord, item.Key(), err)
			}
			row, err := rowFromDocument(doc, cancerCode, version)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Append stores the row after every row already appended to its version.
func (s *BadgerStore) Append(ctx context.Context, row RawRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(documentFromRow(row))
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("badger sequence: %w", err)
	}
	key := binary.BigEndian.AppendUint64(badgerVersionPrefix(row.CancerCode, row.LogTimestamp), n)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func badgerCodePrefix(cancerCode string) []byte {
	return []byte("log/" + cancerCode + "/")
}

func badgerVersionPrefix(cancerCode string, version int64) []byte {
	p := badgerCodePrefix(cancerCode)
	p = binary.BigEndian.AppendUint64(p, encodeSortableInt(version))
	return append(p, '/')
}

// encodeSortableInt flips the sign bit so negative versions sort first.
func encodeSortableInt(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

func decodeSortableInt(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

var (
	_ Store    = (*BadgerStore)(nil)
	_ Appender = (*BadgerStore)(nil)
)
