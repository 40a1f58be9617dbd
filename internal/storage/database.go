package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// MongoSink writes records to a MongoDB collection, one document per
// record, tagged with the export batch.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	mu         sync.Mutex
	count      int
	now        func() time.Time
	logger     *slog.Logger
}

type mongoRecord struct {
	types.Record `bson:",inline"`
	Batch        string    `bson:"_batch"`
	ExportedAt   time.Time `bson:"_exported_at"`
}

// NewMongoSink connects to uri and verifies the server is reachable.
func NewMongoSink(ctx context.Context, uri, database, collection string, timeout time.Duration, logger *slog.Logger) (*MongoSink, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
		timeout:    timeout,
		now:        time.Now,
		logger:     logger.With("component", "mongo_sink"),
	}, nil
}

func (s *MongoSink) Name() string { return "mongodb" }

func (s *MongoSink) Store(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := mongoDocuments(records, s.now().UTC())

	ctx, cancel := context.WithTimeout(ctx, 3*s.timeout)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records stored in mongodb", "count", len(records), "total", s.count)
	return nil
}

func (s *MongoSink) Close() error {
	s.logger.Info("mongodb sink closing", "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// mongoDocuments converts records into insertable documents sharing one
// batch id derived from the export time.
func mongoDocuments(records []types.Record, at time.Time) []any {
	batch := fmt.Sprintf("%d", at.UnixMilli())
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = mongoRecord{Record: r, Batch: batch, ExportedAt: at}
	}
	return docs
}
