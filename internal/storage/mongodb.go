package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultMongoDatabase = "keyring"
	mongoConnectTimeout  = 10 * time.Second
)

// mongoStorage has no SQL handle, so only usage tracking can run on it;
// the relational store always needs sqlite or postgresql.
type mongoStorage struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDB connects to cfg.URL and verifies the primary is reachable.
func NewMongoDB(ctx context.Context, cfg MongoDBConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("MongoDB URL is required")
	}
	name := cfg.Database
	if name == "" {
		name = defaultMongoDatabase
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetAppName("keyring").
		SetConnectTimeout(mongoConnectTimeout)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &mongoStorage{client: client, db: client.Database(name)}, nil
}

func (s *mongoStorage) Type() string { return TypeMongoDB }
func (s *mongoStorage) DB() *sql.DB { return nil }
func (s *mongoStorage) Dialect() Dialect { return DialectNone }
func (s *mongoStorage) PostgreSQLPool() *pgxpool.Pool { return nil }
func (s *mongoStorage) MongoDatabase() *mongo.Database {
	return s.db
}

func (s *mongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
