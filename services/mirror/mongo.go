package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore keeps the mirror in a MongoDB database
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client against uri and verifies it with a ping
func Connect(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Printf("[SYNC] Connected to MongoDB database %q", database)
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the secondary indexes the mirror endpoints query by
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	models := map[string][]mongo.IndexModel{
		CollConnections: {
			{Keys: bson.D{{Key: "requester_id", Value: 1}}},
			{Keys: bson.D{{Key: "recipient_id", Value: 1}}},
		},
		CollAdminUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
			{Keys: bson.D{{Key: "university_id", Value: 1}}},
		},
		CollUniversities: {
			{Keys: bson.D{{Key: "code", Value: 1}}},
		},
	}
	for coll, idx := range models {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Upsert(ctx context.Context, collection string, id uint, doc interface{}) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": int64(id)}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s/%d: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection string, id uint) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": int64(id)}); err != nil {
		return fmt.Errorf("delete %s/%d: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection string, id uint, out interface{}) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": int64(id)}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query, out interface{}) (int64, error) {
	filter := q.Filter
	if filter == nil {
		filter = bson.M{}
	}
	coll := s.db.Collection(collection)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(q.Offset)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return 0, fmt.Errorf("find %s: %w", collection, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", collection, err)
	}
	return total, nil
}

// Ping checks the primary is reachable
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
