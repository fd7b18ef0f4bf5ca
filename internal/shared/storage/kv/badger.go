// Package kv opens the embedded key-value store used for single-node deployments.
package kv

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"biomrk-backend/internal/shared/telemetry"
)

// Config selects where and how badger keeps its files.
type Config struct {
	// Path is required unless InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// InMemoryConfig is used by tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Open opens a badger database, creating Path when needed. The caller closes it.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// badgerLogger routes badger's printf-style logging into telemetry.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	telemetry.Error("kv.badger", map[string]any{"msg": fmt.Sprintf(format, args...)})
}

func (badgerLogger) Warningf(format string, args ...any) {
	telemetry.Warn("kv.badger", map[string]any{"msg": fmt.Sprintf(format, args...)})
}

func (badgerLogger) Infof(format string, args ...any) {
	telemetry.Debug("kv.badger", map[string]any{"msg": fmt.Sprintf(format, args...)})
}

func (badgerLogger) Debugf(format string, args ...any) {
	telemetry.Debug("kv.badger", map[string]any{"msg": fmt.Sprintf(format, args...)})
}
