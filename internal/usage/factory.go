package usage

import (
	"context"
	"errors"
	"fmt"

	"keyring/internal/storage"
)

// Result holds the usage logger, its reader and any storage opened for it.
// The caller must call Close during shutdown.
type Result struct {
	Logger Recorder
	Reader UsageReader
	// Storage is set only when usage opened its own connection.
	Storage storage.Storage
}

// Close releases all resources held by the usage tracking. Safe to call multiple times.
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
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates usage tracking from cfg. With the "sql" backend it writes into
// the shared relational storage; with "mongodb" it opens its own connection.
// When tracking is disabled the logger discards entries and Reader is nil.
func New(ctx context.Context, cfg Config, shared storage.Storage) (*Result, error) {
	if !cfg.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	var (
		owned storage.Storage
		store storageBackedStore
		err   error
	)
	switch cfg.Backend {
	case "", BackendSQL:
		if shared == nil {
			return nil, fmt.Errorf("storage is required when usage tracking is enabled")
		}
		store, err = createUsageStore(ctx, shared, cfg.RetentionDays)
	case BackendMongoDB:
		owned, err = storage.NewMongoDB(ctx, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage storage: %w", err)
		}
		store, err = createUsageStore(ctx, owned, cfg.RetentionDays)
	default:
		return nil, fmt.Errorf("unknown usage backend: %s (valid: sql, mongodb)", cfg.Backend)
	}
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(store, cfg),
		Reader:  store,
		Storage: owned,
	}, nil
}

type storageBackedStore interface {
	UsageStore
	UsageReader
}

// createUsageStore picks the store implementation for the storage backend.
func createUsageStore(ctx context.Context, s storage.Storage, retentionDays int) (storageBackedStore, error) {
	switch s.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(s.DB(), retentionDays)

	case storage.TypePostgreSQL:
		pool := s.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		return NewPostgreSQLStore(ctx, pool, retentionDays)

	case storage.TypeMongoDB:
		db := s.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		return NewMongoDBStore(ctx, db, retentionDays)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", s.Type())
	}
}
