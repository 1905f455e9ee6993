package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsahiduek/ai-on-eks/config"
	"github.com/tsahiduek/ai-on-eks/internal/storage"
)

// Result bundles a usage logger with the storage connection behind it, so
// shutdown can tear both down in order.
type Result struct {
	Logger  LoggerInterface
	Storage storage.Storage
}

// Close flushes and stops the logger, then closes the storage connection
// when this Result owns one. Idempotent.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// New wires up usage tracking from configuration: it opens the configured
// storage backend, prepares the per-backend store, and starts the buffered
// logger. With tracking disabled it returns a NoopLogger and nil storage,
// so callers never branch on the config themselves.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.Usage.Enabled {
		return &Result{
			Logger:  &NoopLogger{},
			Storage: nil,
		}, nil
	}

	store, err := storage.New(ctx, BuildStorageConfig(cfg.Usage.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	usageStore, err := createStore(store, cfg.Usage.RetentionDays)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(usageStore, buildLoggerConfig(cfg.Usage)),
		Storage: store,
	}, nil
}

// NewWithSharedStorage creates a usage logger over an existing storage
// connection. The caller keeps ownership of the storage and closes it
// separately.
func NewWithSharedStorage(_ context.Context, cfg *config.Config, store storage.Storage) (*Result, error) {
	if !cfg.Usage.Enabled {
		return &Result{
			Logger:  &NoopLogger{},
			Storage: nil,
		}, nil
	}

	if store == nil {
		return nil, fmt.Errorf("storage is required when usage tracking is enabled")
	}

	usageStore, err := createStore(store, cfg.Usage.RetentionDays)
	if err != nil {
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(usageStore, buildLoggerConfig(cfg.Usage)),
		Storage: nil, // shared; not owned by this Result
	}, nil
}

// BuildStorageConfig converts the config-file storage section into the
// storage package's config, applying defaults.
func BuildStorageConfig(sc config.StorageConfig) storage.Config {
	storageCfg := storage.Config{
		Type: sc.Type,
		SQLite: storage.SQLiteConfig{
			Path: sc.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL: sc.PostgreSQL.DSN,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      sc.MongoDB.URI,
			Database: sc.MongoDB.Database,
		},
	}

	if storageCfg.Type == "" {
		storageCfg.Type = storage.TypeSQLite
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = "inferctl"
	}

	return storageCfg
}

// createStore picks the Store implementation matching the backend type.
func createStore(store storage.Storage, retentionDays int) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(store.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// buildLoggerConfig maps the config-file usage section onto the logger's
// Config. NewLogger applies the buffer and interval defaults.
func buildLoggerConfig(usageCfg config.UsageConfig) Config {
	return Config{
		Enabled:       usageCfg.Enabled,
		BufferSize:    usageCfg.BufferSize,
		FlushInterval: time.Duration(usageCfg.FlushIntervalSeconds) * time.Second,
		RetentionDays: usageCfg.RetentionDays,
	}
}
