package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// usageCollection is the MongoDB collection holding usage entries.
const usageCollection = "usage"

// ErrPartialWrite marks a batch insert where some entries failed while
// others landed. Match it with errors.Is.
var ErrPartialWrite = errors.New("partial write failure")

// PartialWriteError reports how much of a batch insert failed. It wraps
// ErrPartialWrite and carries the underlying bulk-write exception.
type PartialWriteError struct {
	Total  int
	Failed int
	Cause  mongo.BulkWriteException
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial usage insert: %d of %d entries failed: %v",
		e.Failed, e.Total, e.Cause.Error())
}

func (e *PartialWriteError) Unwrap() error {
	return ErrPartialWrite
}

// MongoDBStore implements Store on a MongoDB collection. Retention is
// delegated to a TTL index, so the cleanup loop skips this backend.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore prepares the usage collection and its indexes. With a
// positive retentionDays the timestamp index doubles as a TTL index and
// MongoDB expires old entries on its own.
func NewMongoDBStore(database *mongo.Database, retentionDays int) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection(usageCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, usageIndexes(retentionDays)); err != nil {
		// Not fatal: the indexes usually exist already.
		slog.Warn("failed to create some MongoDB indexes for usage", "error", err)
	}

	return &MongoDBStore{collection: collection}, nil
}

// usageIndexes returns the index set for the usage collection: one per
// filterable field, plus a descending timestamp index that becomes a TTL
// index when retention is configured. MongoDB forbids a second index on
// the same field, so TTL and plain timestamp are mutually exclusive.
func usageIndexes(retentionDays int) []mongo.IndexModel {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
		{Keys: bson.D{{Key: "model", Value: 1}}},
		{Keys: bson.D{{Key: "endpoint", Value: 1}}},
		{Keys: bson.D{{Key: "operation", Value: 1}}},
	}

	timestamp := mongo.IndexModel{Keys: bson.D{{Key: "timestamp", Value: -1}}}
	if retentionDays > 0 {
		ttl := int32(int64(retentionDays) * 24 * 60 * 60)
		timestamp.Options = options.Index().SetExpireAfterSeconds(ttl)
	}
	return append(indexes, timestamp)
}

// WriteBatch inserts entries with an unordered InsertMany, so one bad
// document does not sink the rest of the batch. A mixed outcome comes
// back as a *PartialWriteError.
func (s *MongoDBStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, len(entries))
	for i, e := range entries {
		docs[i] = e
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}

	var bulkErr *mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		failed := len(bulkErr.WriteErrors)
		slog.Warn("partial usage insert failure",
			"total", len(entries),
			"failed", failed,
			"succeeded", len(entries)-failed,
		)
		return &PartialWriteError{
			Total:  len(entries),
			Failed: failed,
			Cause:  *bulkErr,
		}
	}
	return fmt.Errorf("failed to insert usage entries: %w", err)
}

// Flush is a no-op: InsertMany is synchronous.
func (s *MongoDBStore) Flush(_ context.Context) error {
	return nil
}

// Close is a no-op: the client belongs to the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
