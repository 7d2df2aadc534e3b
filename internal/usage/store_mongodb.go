package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoCollection = "usage_entries"

// ErrPartialWrite indicates that a batch write only partially succeeded.
var ErrPartialWrite = errors.New("partial write failure")

// PartialWriteError reports how many entries of a batch were rejected.
type PartialWriteError struct {
	TotalEntries int
	FailedCount  int
	Cause        mongo.BulkWriteException
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial usage insert: %d of %d entries failed: %v",
		e.FailedCount, e.TotalEntries, e.Cause.Error())
}

func (e *PartialWriteError) Unwrap() error {
	return ErrPartialWrite
}

var usagePartialWriteFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "keyring_usage_partial_write_failures_total",
		Help: "Total number of partial write failures when inserting usage entries to MongoDB",
	},
)

// MongoDBStore implements UsageStore and UsageReader for MongoDB.
// Retention is enforced by a TTL index instead of a cleanup loop.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore ensures the collection indexes exist.
func NewMongoDBStore(ctx context.Context, database *mongo.Database, retentionDays int) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection(mongoCollection)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
	}

	// A field cannot carry both a TTL and a plain index.
	ts := mongo.IndexModel{Keys: bson.D{{Key: "timestamp", Value: -1}}}
	if retentionDays > 0 {
		ts.Options = options.Index().SetExpireAfterSeconds(int32(int64(retentionDays) * 24 * 60 * 60))
	}
	indexes = append(indexes, ts)

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		slog.Warn("failed to create some MongoDB indexes for usage", "error", err)
	}

	return &MongoDBStore{collection: collection}, nil
}

// WriteBatch inserts entries unordered so one duplicate does not stop the rest.
func (s *MongoDBStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = e
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		failed := len(bulkErr.WriteErrors)
		slog.Warn("partial usage insert failure",
			"total", len(entries),
			"failed", failed,
			"succeeded", len(entries)-failed,
		)
		usagePartialWriteFailures.Inc()
		return &PartialWriteError{
			TotalEntries: len(entries),
			FailedCount:  failed,
			Cause:        bulkErr,
		}
	}
	return fmt.Errorf("failed to insert usage entries: %w", err)
}

// Summary aggregates the user's entries by provider.
func (s *MongoDBStore) Summary(ctx context.Context, userID string, since time.Time) (*Summary, error) {
	match := bson.D{{Key: "user_id", Value: userID}}
	if !since.IsZero() {
		match = append(match, bson.E{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: since.UTC()}}})
	}

	pipeline := bson.A{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$provider"},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "input_tokens", Value: bson.D{{Key: "$sum", Value: "$input_tokens"}}},
			{Key: "output_tokens", Value: bson.D{{Key: "$sum", Value: "$output_tokens"}}},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage summary: %w", err)
	}
	defer cursor.Close(ctx)

	var out []ProviderUsage
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode usage summary: %w", err)
	}
	return summarize(out), nil
}

// Flush is a no-op; writes are synchronous.
func (s *MongoDBStore) Flush(_ context.Context) error {
	return nil
}

// Close is a no-op; the client is owned by the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
