package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoJournal stores ledger journal entries in the ledger_journal collection.
type MongoJournal struct {
	entries *mongo.Collection
}

func NewMongoJournal(client *mongo.Client, dbName string) *MongoJournal {
	return &MongoJournal{
		entries: client.Database(dbName).Collection("ledger_journal"),
	}
}

// EnsureIndexes creates the lookup index used by List.
func (r *MongoJournal) EnsureIndexes(ctx context.Context) error {
	_, err := r.entries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "challenge_id", Value: 1}, {Key: "phase", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create journal index: %w", err)
	}
	return nil
}

func (r *MongoJournal) Record(ctx context.Context, e JournalEntry) error {
	if _, err := r.entries.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

func (r *MongoJournal) List(ctx context.Context, challengeID string, phase JournalPhase) ([]JournalEntry, error) {
	filter := bson.M{}
	if challengeID != "" {
		filter["challenge_id"] = challengeID
	}
	if phase != "" {
		filter["phase"] = phase
	}
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}})

	cursor, err := r.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer cursor.Close(ctx)

	var results []JournalEntry
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	return results, nil
}
