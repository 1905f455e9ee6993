package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoDatabase = "inferctl"

type mongoStorage struct {
	client   *mongo.Client
	database *mongo.Database
}

func openMongoDB(ctx context.Context, cfg MongoDBConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("MongoDB URI is required")
	}
	name := cfg.Database
	if name == "" {
		name = defaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &mongoStorage{
		client:   client,
		database: client.Database(name),
	}, nil
}

func (s *mongoStorage) Type() string                  { return TypeMongoDB }
func (s *mongoStorage) SQLiteDB() *sql.DB             { return nil }
func (s *mongoStorage) PostgreSQLPool() *pgxpool.Pool { return nil }
func (s *mongoStorage) MongoDatabase() *mongo.Database {
	return s.database
}

// Close disconnects the client. The deadline keeps a hung server from
// stalling CLI shutdown.
func (s *mongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
