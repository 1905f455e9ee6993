package usage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBReader implements Reader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB usage reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection(usageCollection)}, nil
}

// Totals returns per-model aggregates since the given time.
func (r *MongoDBReader) Totals(ctx context.Context, since time.Time) ([]ModelTotals, error) {
	pipeline := bson.A{}

	if !since.IsZero() {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{
			{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
		}}})
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$model"},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "prompt_tokens", Value: bson.D{{Key: "$sum", Value: "$prompt_tokens"}}},
			{Key: "completion_tokens", Value: bson.D{{Key: "$sum", Value: "$completion_tokens"}}},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
			{Key: "errors", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$ne", Value: bson.A{"$error_type", ""}}}, 1, 0,
				}},
			}}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "total_tokens", Value: -1}}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage totals: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]ModelTotals, 0)
	for cursor.Next(ctx) {
		var row struct {
			Model            string `bson:"_id"`
			Requests         int    `bson:"requests"`
			PromptTokens     int64  `bson:"prompt_tokens"`
			CompletionTokens int64  `bson:"completion_tokens"`
			TotalTokens      int64  `bson:"total_tokens"`
			Errors           int    `bson:"errors"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode totals row: %w", err)
		}
		result = append(result, ModelTotals{
			Model:            row.Model,
			Requests:         row.Requests,
			PromptTokens:     row.PromptTokens,
			CompletionTokens: row.CompletionTokens,
			TotalTokens:      row.TotalTokens,
			Errors:           row.Errors,
		})
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating totals cursor: %w", err)
	}

	return result, nil
}

// Recent returns the most recent entries, newest first.
func (r *MongoDBReader) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	limit = clampLimit(limit)

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent usage: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*Entry, 0, limit)
	for cursor.Next(ctx) {
		var e Entry
		if err := cursor.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode usage entry: %w", err)
		}
		result = append(result, &e)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage cursor: %w", err)
	}

	return result, nil
}
