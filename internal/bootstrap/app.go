package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/shared/server"
	"biomrk-backend/internal/shared/storage/db"
	"biomrk-backend/internal/shared/storage/kv"
	"biomrk-backend/internal/shared/storage/object"
	gcsstore "biomrk-backend/internal/shared/storage/object/gcs"
	localstore "biomrk-backend/internal/shared/storage/object/local"
	s3store "biomrk-backend/internal/shared/storage/object/s3"
	"biomrk-backend/internal/shared/telemetry"
	"biomrk-backend/internal/snapshots"
)

// Backend is the analysis log selected by configuration together with the
// handles it owns.
type Backend struct {
	Kind    string
	Store   snapshots.Store
	DB      *sql.DB
	Objects object.ObjectStore

	closers []func() error
}

// App holds the API dependencies.
type App struct {
	Config  config.Config
	Backend *Backend
	Service *snapshots.Service
	Handler *snapshots.Handler
	Router  *gin.Engine
}

// Build prepares the API: backend, snapshot service and router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	backend, err := OpenBackend(ctx, cfg, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		return nil, err
	}
	if err := seedFromFile(ctx, backend, cfg.SeedFile); err != nil {
		_ = backend.Close()
		return nil, err
	}

	svc := snapshots.NewService(backend.Store, cfg.StoreReadTimeout)
	handler := snapshots.NewHandler(svc)
	app := &App{
		Config:  cfg,
		Backend: backend,
		Service: svc,
		Handler: handler,
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Handlers: []server.RouteRegistrar{handler},
		Ready:    backend.Ready,
	})
	return app, nil
}

// OpenBackend builds the snapshot store named by cfg.SnapshotStore.
func OpenBackend(ctx context.Context, cfg config.Config, dbOpts db.Options) (*Backend, error) {
	b := &Backend{Kind: cfg.SnapshotStore}
	switch cfg.SnapshotStore {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("SNAPSHOT_STORE=postgres requires DATABASE_URL")
		}
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, dbOpts)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		b.DB = sqlDB
		b.Store = &snapshots.PGStore{DB: sqlDB}
		b.closers = append(b.closers, sqlDB.Close)
	case "memory":
		b.Store = snapshots.NewMemoryStore()
	case "badger":
		kvDB, err := kv.Open(kv.Config{Path: cfg.BadgerDir, SyncWrites: true})
		if err != nil {
			return nil, err
		}
		store, err := snapshots.NewBadgerStore(kvDB)
		if err != nil {
			_ = kvDB.Close()
			return nil, err
		}
		b.Store = store
		b.closers = append(b.closers, kvDB.Close, store.Close)
	default:
		objects, closer, err := buildObjectStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.Kind = "object"
		b.Objects = objects
		b.Store = snapshots.NewPartitionedStore(objects, cfg.TablePath)
		if closer != nil {
			b.closers = append(b.closers, closer)
		}
	}

	telemetry.Info("bootstrap.backend", map[string]any{
		"snapshot_store": b.Kind,
		"object_store":   cfg.ObjectStoreType,
		"table_path":     cfg.TablePath,
	})
	return b, nil
}

func buildObjectStore(ctx context.Context, cfg config.Config) (object.ObjectStore, func() error, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.S3KMSKeyID)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "gcs":
		if strings.TrimSpace(cfg.GCSBucket) == "" {
			return nil, nil, errors.New("OBJECT_STORE=gcs requires GCS_BUCKET")
		}
		store, err := gcsstore.New(ctx, cfg.GCSBucket, "", gcsstore.Credentials{
			KeyFile:     cfg.GCSCredentialsFile,
			AccessToken: cfg.GCSAccessToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil, nil
	}
}

// Appender returns the backend's write side.
func (b *Backend) Appender() (snapshots.Appender, bool) {
	a, ok := b.Store.(snapshots.Appender)
	return a, ok
}

// Ready reports whether the backend can be reached. Only database backends are probed.
func (b *Backend) Ready(ctx context.Context) error {
	if b.DB == nil {
		return nil
	}
	return b.DB.PingContext(ctx)
}

// Close releases handles in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func seedFromFile(ctx context.Context, b *Backend, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	dst, ok := b.Appender()
	if !ok {
		return fmt.Errorf("snapshot store %s does not accept rows", b.Kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	rows, err := snapshots.ReadSeed(f)
	if err != nil {
		return err
	}
	n, err := snapshots.Seed(ctx, dst, rows)
	if err != nil {
		return err
	}
	telemetry.Info("bootstrap.seeded", map[string]any{"rows": n, "file": path})
	return nil
}
