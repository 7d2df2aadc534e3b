// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultBodySizeLimit caps request bodies at 10 MiB.
const DefaultBodySizeLimit int64 = 10 << 20

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Usage     UsageConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	Providers ProvidersConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string
	CORSOrigin    string
	BodySizeLimit int64
}

// AuthConfig holds token signing and credential sealing secrets
type AuthConfig struct {
	JWTSecret        string
	JWTRefreshSecret string
	// EncryptionKey seals stored provider keys. Empty stores them as given.
	EncryptionKey string
}

// StorageConfig selects the primary database
type StorageConfig struct {
	Type             string
	SQLitePath       string
	PostgresURL      string
	PostgresMaxConns int32
}

// UsageConfig holds token usage tracking configuration
type UsageConfig struct {
	Enabled       bool
	StorageType   string
	MongoDBURL    string
	MongoDatabase string
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// CacheConfig holds the key validation cache configuration
type CacheConfig struct {
	Type     string
	RedisURL string
	TTL      time.Duration
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// ProvidersConfig holds outbound provider settings
type ProvidersConfig struct {
	Timeout           time.Duration
	OpenAIBaseURL     string
	OpenRouterBaseURL string
	AnthropicBaseURL  string
	GeminiBaseURL     string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"PORT":                 "3001",
	"CORS_ORIGIN":          "*",
	"BODY_SIZE_LIMIT":      DefaultBodySizeLimit,
	"STORAGE_TYPE":         "sqlite",
	"SQLITE_PATH":          "data/keyring.db",
	"POSTGRES_MAX_CONNS":   10,
	"USAGE_ENABLED":        true,
	"USAGE_STORAGE_TYPE":   "sql",
	"MONGODB_DATABASE":     "keyring",
	"USAGE_BUFFER_SIZE":    1000,
	"USAGE_FLUSH_INTERVAL": "5s",
	"USAGE_RETENTION_DAYS": 90,
	"CACHE_TYPE":           "local",
	"VALIDATION_CACHE_TTL": "10m",
	"METRICS_ENABLED":      false,
	"METRICS_ENDPOINT":     "/metrics",
	"PROVIDER_TIMEOUT":     "120s",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "auto",
}

// Keys without a default still need binding so AutomaticEnv sees them.
var unsetKeys = []string{
	"JWT_SECRET",
	"JWT_REFRESH_SECRET",
	"ENCRYPTION_KEY",
	"POSTGRES_URL",
	"MONGODB_URL",
	"REDIS_URL",
	"OPENAI_BASE_URL",
	"OPENROUTER_BASE_URL",
	"ANTHROPIC_BASE_URL",
	"GEMINI_BASE_URL",
}

// Load reads configuration from .env, an optional config.yaml and the
// environment, then validates it. Environment variables win over the file,
// which wins over defaults. String values from the file may reference the
// environment as ${VAR} or ${VAR:-default}.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without Validate, for commands that only need a subset such
// as the provider settings.
func Read() (*Config, error) {
	// .env is optional and never overrides variables already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range unsetKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	get := func(key string) string {
		return strings.TrimSpace(expandString(v.GetString(key)))
	}

	var errs []error
	duration := func(key string) time.Duration {
		d, err := parseDuration(get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	integer := func(key string) int64 {
		n, err := strconv.ParseInt(get(key), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, get(key)))
		}
		return n
	}
	boolean := func(key string) bool {
		b, err := strconv.ParseBool(get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, get(key)))
		}
		return b
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          get("PORT"),
			CORSOrigin:    get("CORS_ORIGIN"),
			BodySizeLimit: integer("BODY_SIZE_LIMIT"),
		},
		Auth: AuthConfig{
			JWTSecret:        get("JWT_SECRET"),
			JWTRefreshSecret: get("JWT_REFRESH_SECRET"),
			EncryptionKey:    get("ENCRYPTION_KEY"),
		},
		Storage: StorageConfig{
			Type:             strings.ToLower(get("STORAGE_TYPE")),
			SQLitePath:       get("SQLITE_PATH"),
			PostgresURL:      get("POSTGRES_URL"),
			PostgresMaxConns: int32(integer("POSTGRES_MAX_CONNS")),
		},
		Usage: UsageConfig{
			Enabled:       boolean("USAGE_ENABLED"),
			StorageType:   strings.ToLower(get("USAGE_STORAGE_TYPE")),
			MongoDBURL:    get("MONGODB_URL"),
			MongoDatabase: get("MONGODB_DATABASE"),
			BufferSize:    int(integer("USAGE_BUFFER_SIZE")),
			FlushInterval: duration("USAGE_FLUSH_INTERVAL"),
			RetentionDays: int(integer("USAGE_RETENTION_DAYS")),
		},
		Cache: CacheConfig{
			Type:     strings.ToLower(get("CACHE_TYPE")),
			RedisURL: get("REDIS_URL"),
			TTL:      duration("VALIDATION_CACHE_TTL"),
		},
		Metrics: MetricsConfig{
			Enabled:  boolean("METRICS_ENABLED"),
			Endpoint: get("METRICS_ENDPOINT"),
		},
		Providers: ProvidersConfig{
			Timeout:           duration("PROVIDER_TIMEOUT"),
			OpenAIBaseURL:     get("OPENAI_BASE_URL"),
			OpenRouterBaseURL: get("OPENROUTER_BASE_URL"),
			AnthropicBaseURL:  get("ANTHROPIC_BASE_URL"),
			GeminiBaseURL:     get("GEMINI_BASE_URL"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(get("LOG_LEVEL")),
			Format: strings.ToLower(get("LOG_FORMAT")),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required secrets and enumerated values.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if c.Server.BodySizeLimit <= 0 {
		errs = append(errs, errors.New("BODY_SIZE_LIMIT must be positive"))
	}

	switch c.Storage.Type {
	case "sqlite":
	case "postgresql":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when STORAGE_TYPE=postgresql"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_TYPE must be sqlite or postgresql, got %q", c.Storage.Type))
	}

	switch c.Usage.StorageType {
	case "sql":
	case "mongodb":
		if c.Usage.Enabled && c.Usage.MongoDBURL == "" {
			errs = append(errs, errors.New("MONGODB_URL is required when USAGE_STORAGE_TYPE=mongodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("USAGE_STORAGE_TYPE must be sql or mongodb, got %q", c.Usage.StorageType))
	}

	switch c.Cache.Type {
	case "local":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when CACHE_TYPE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_TYPE must be local or redis, got %q", c.Cache.Type))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be auto, text or json, got %q", c.Log.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("METRICS_ENDPOINT must start with /, got %q", c.Metrics.Endpoint))
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s", "5m") and bare integers, which
// are read as seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// An unset variable without a default expands to the empty string.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if value, ok := os.LookupEnv(m[1]); ok && value != "" {
			return value
		}
		return m[3]
	})
}
