// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the keyring server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"keyring/config"
	"keyring/internal/auth"
	"keyring/internal/cache"
	"keyring/internal/core"
	"keyring/internal/providers"
	"keyring/internal/secrets"
	"keyring/internal/server"
	"keyring/internal/storage"
	"keyring/internal/store"
	"keyring/internal/usage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config *config.Config
	db     storage.Storage
	store  *store.Store
	cache  cache.Cache
	usage  *usage.Result
	server *server.Server

	stopPurge chan struct{}
	purgeDone chan struct{}

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the loaded application configuration.
	AppConfig *config.Config

	// Factory provides the translator registrations for the provider adapter.
	Factory *providers.ProviderFactory
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}

	appCfg := cfg.AppConfig
	app := &App{config: appCfg}

	adapter, err := BuildAdapter(cfg.Factory, appCfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	sealer, err := secrets.New(appCfg.Auth.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential sealing: %w", err)
	}

	app.db, err = storage.New(ctx, storageConfig(appCfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.store, err = store.New(ctx, app.db)
	if err != nil {
		return nil, app.fail("failed to initialize store", err)
	}

	issuer, err := auth.NewIssuer(appCfg.Auth.JWTSecret, appCfg.Auth.JWTRefreshSecret, app.store)
	if err != nil {
		return nil, app.fail("failed to initialize token issuer", err)
	}

	app.cache, err = newCache(ctx, appCfg.Cache)
	if err != nil {
		return nil, app.fail("failed to initialize validation cache", err)
	}

	app.usage, err = usage.New(ctx, usageConfig(appCfg.Usage), app.db)
	if err != nil {
		return nil, app.fail("failed to initialize usage tracking", err)
	}

	app.logStartupInfo()

	app.server = server.New(server.Deps{
		Store:       app.store,
		Adapter:     adapter,
		Tokens:      issuer,
		Validator:   cache.NewValidator(adapter, app.cache),
		Sealer:      sealer,
		Usage:       app.usage.Logger,
		UsageReader: app.usage.Reader,
	}, &server.Config{
		CORSOrigin:      appCfg.Server.CORSOrigin,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
	})

	app.stopPurge = make(chan struct{})
	app.purgeDone = make(chan struct{})
	go func() {
		defer close(app.purgeDone)
		usage.RunCleanupLoop(app.stopPurge, app.purgeTokens)
	}()

	return app, nil
}

// BuildAdapter instantiates every registered translator with the configured
// base URLs and timeout.
func BuildAdapter(factory *providers.ProviderFactory, cfg config.ProvidersConfig) (*providers.Adapter, error) {
	opts := func(baseURL string) providers.Options {
		return providers.Options{BaseURL: baseURL, Timeout: cfg.Timeout}
	}
	return factory.Build(map[core.Provider]providers.Options{
		core.ProviderOpenAI:     opts(cfg.OpenAIBaseURL),
		core.ProviderOpenRouter: opts(cfg.OpenRouterBaseURL),
		core.ProviderAnthropic:  opts(cfg.AnthropicBaseURL),
		core.ProviderGoogle:     opts(cfg.GeminiBaseURL),
	})
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	sc := storage.DefaultConfig()
	sc.Type = cfg.Type
	if cfg.SQLitePath != "" {
		sc.SQLite.Path = cfg.SQLitePath
	}
	sc.PostgreSQL.URL = cfg.PostgresURL
	if cfg.PostgresMaxConns > 0 {
		sc.PostgreSQL.MaxConns = int(cfg.PostgresMaxConns)
	}
	return sc
}

func usageConfig(cfg config.UsageConfig) usage.Config {
	uc := usage.DefaultConfig()
	uc.Enabled = cfg.Enabled
	uc.Backend = cfg.StorageType
	uc.BufferSize = cfg.BufferSize
	uc.FlushInterval = cfg.FlushInterval
	uc.RetentionDays = cfg.RetentionDays
	uc.MongoDB.URL = cfg.MongoDBURL
	if cfg.MongoDatabase != "" {
		uc.MongoDB.Database = cfg.MongoDatabase
	}
	return uc
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{URL: cfg.RedisURL, TTL: cfg.TTL})
	case "", "local":
		return cache.NewLocalCache(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid: local, redis)", cfg.Type)
	}
}

// fail releases whatever New opened so far and wraps err.
func (a *App) fail(msg string, err error) error {
	var errs []error
	if a.usage != nil {
		errs = append(errs, a.usage.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if closeErr := errors.Join(errs...); closeErr != nil {
		return fmt.Errorf("%s: %w (also: close error: %v)", msg, err, closeErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (a *App) purgeTokens() {
	n, err := a.store.PurgeExpiredTokens(context.Background())
	if err != nil {
		slog.Error("failed to purge expired refresh tokens", "error", err)
		return
	}
	if n > 0 {
		slog.Info("purged expired refresh tokens", "deleted", n)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown, honoring the passed context timeout/cancellation.
// 2. Token purge loop stop.
// 3. Usage logger close (flushes pending usage records).
// 4. Validation cache close.
// 5. Storage close.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every close step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Stop accepting new requests
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Stop background purging before the database goes away
	if a.stopPurge != nil {
		close(a.stopPurge)
		<-a.purgeDone
	}

	// 3. Flush usage
	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			slog.Error("usage logger close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	// 4. Validation cache
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("validation cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	// 5. Database
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Auth.EncryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY not set - provider keys are stored unsealed",
			"recommendation", "set ENCRYPTION_KEY to seal stored provider keys at rest")
	} else {
		slog.Info("credential sealing enabled", "scheme", "aes-256-gcm")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	slog.Info("validation cache configured", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)

	if cfg.Usage.Enabled {
		slog.Info("usage tracking enabled",
			"storage_type", cfg.Usage.StorageType,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		slog.Info("usage tracking disabled")
	}

	if cfg.Providers.Timeout > 0 {
		slog.Info("provider timeout configured", "timeout", cfg.Providers.Timeout)
	}
}
