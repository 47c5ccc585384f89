package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoArchive writes entries to a MongoDB collection.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoArchive connects to uri and ensures the lookup index on the collection.
func NewMongoArchive(uri, database, collection string, logger *slog.Logger) (*MongoArchive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "source", Value: 1}, {Key: "profile_url", Value: 1}, {Key: "archived_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb create index: %w", err)
	}

	return &MongoArchive{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_archive"),
	}, nil
}

func (s *MongoArchive) Name() string { return "mongodb" }

func (s *MongoArchive) Store(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = document(e)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}

	s.count += len(entries)
	s.logger.Debug("records archived in mongodb", "count", len(entries), "total", s.count)
	return nil
}

func (s *MongoArchive) Close() error {
	s.logger.Info("mongodb archive closing", "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// document maps an Entry onto the stored document shape.
func document(e Entry) bson.M {
	doc := bson.M{
		"run_id":      e.RunID,
		"source":      string(e.Source),
		"author":      e.Author,
		"profile_url": e.ProfileURL,
		"page":        e.Page,
		"fields":      e.Fields,
		"archived_at": e.ArchivedAt,
	}
	if e.Category != "" {
		doc["category"] = string(e.Category)
		doc["rule"] = e.Rule
	}
	if len(e.CitationsByYear) > 0 {
		doc["citations_by_year"] = e.CitationsByYear
	}
	return doc
}
