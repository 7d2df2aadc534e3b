// Package usage records per-user token usage of provider calls and serves
// aggregated summaries. Writes are buffered and flushed in batches.
package usage

import (
	"context"
	"time"

	"keyring/internal/storage"
)

// Backend names for Config.Backend.
const (
	// BackendSQL stores usage next to the application tables.
	BackendSQL = "sql"
	// BackendMongoDB stores usage in its own MongoDB database.
	BackendMongoDB = "mongodb"
)

// UsageStore defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type UsageStore interface {
	// WriteBatch writes multiple usage entries to storage.
	WriteBatch(ctx context.Context, entries []*UsageEntry) error

	// Flush forces any pending writes to complete.
	Flush(ctx context.Context) error

	// Close stops background work. The underlying connection is not closed.
	Close() error
}

// UsageReader aggregates stored usage for one user.
type UsageReader interface {
	// Summary returns totals for userID since the given time.
	// A zero since covers all stored entries.
	Summary(ctx context.Context, userID string, since time.Time) (*Summary, error)
}

// UsageEntry represents a single token usage record.
type UsageEntry struct {
	ID         string    `json:"id" bson:"_id"`
	RequestID  string    `json:"request_id" bson:"request_id"`
	UserID     string    `json:"user_id" bson:"user_id"`
	ProviderID string    `json:"provider_id" bson:"provider_id"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`

	Provider string `json:"provider" bson:"provider"`
	Model    string `json:"model" bson:"model"`
	Endpoint string `json:"endpoint" bson:"endpoint"`

	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`
}

// ProviderUsage is the per-provider slice of a Summary.
type ProviderUsage struct {
	Provider     string `json:"provider" bson:"_id"`
	Requests     int    `json:"requests" bson:"requests"`
	InputTokens  int64  `json:"inputTokens" bson:"input_tokens"`
	OutputTokens int64  `json:"outputTokens" bson:"output_tokens"`
	TotalTokens  int64  `json:"totalTokens" bson:"total_tokens"`
}

// Summary holds aggregated usage for a user.
type Summary struct {
	Requests     int             `json:"requests"`
	InputTokens  int64           `json:"inputTokens"`
	OutputTokens int64           `json:"outputTokens"`
	TotalTokens  int64           `json:"totalTokens"`
	Providers    []ProviderUsage `json:"providers"`
}

// summarize folds per-provider rows into a Summary.
func summarize(rows []ProviderUsage) *Summary {
	s := &Summary{Providers: rows}
	if s.Providers == nil {
		s.Providers = []ProviderUsage{}
	}
	for _, r := range rows {
		s.Requests += r.Requests
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		s.TotalTokens += r.TotalTokens
	}
	return s
}

// Config holds usage tracking configuration
type Config struct {
	// Enabled controls whether usage tracking is active
	Enabled bool

	// Backend selects where entries go: "sql" or "mongodb"
	Backend string

	// BufferSize is the number of usage entries to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int

	// MongoDB is used when Backend is "mongodb"
	MongoDB storage.MongoDBConfig
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Backend:       BackendSQL,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
		MongoDB: storage.MongoDBConfig{
			Database: "keyring",
		},
	}
}
