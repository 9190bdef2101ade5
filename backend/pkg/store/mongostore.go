package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoStore implements Store against a real MongoDB database, with every
// collection opened at a journaled write concern so that a call which
// returns successfully survives a crash of the mongod process.
type MongoStore struct {
	db *mongo.Database
}

// Connect dials uri and returns a MongoStore bound to database dbName. The
// connection is verified with a ping so configuration errors surface here
// rather than on the first real operation.
func Connect(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetWriteConcern(writeconcern.Journaled()))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &MongoStore{db: client.Database(dbName)}, nil
}

// NewMongoStore wraps an already-connected database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name, options.Collection().SetWriteConcern(writeconcern.Journaled()))
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc interface{}) error {
	_, err := s.coll(collection).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("store: insert into %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter Predicate, out interface{}) (bool, error) {
	err := s.coll(collection).FindOne(ctx, ToBSON(filter)).Decode(out)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: findOne in %s: %w", collection, err)
	}
	return true, nil
}

type mongoCursor struct{ c *mongo.Cursor }

func (m *mongoCursor) Next(ctx context.Context) bool { return m.c.Next(ctx) }
func (m *mongoCursor) Decode(out interface{}) error   { return m.c.Decode(out) }
func (m *mongoCursor) Err() error                     { return m.c.Err() }
func (m *mongoCursor) Close(ctx context.Context) error { return m.c.Close(ctx) }

func (s *MongoStore) Find(ctx context.Context, collection string, filter Predicate, opts FindOptions) (Cursor, error) {
	findOpts := options.Find()
	if opts.SortField != "" {
		dir := 1
		if opts.SortDir == Descending {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.SortField, Value: dir}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	cur, err := s.coll(collection).Find(ctx, ToBSON(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", collection, err)
	}
	return &mongoCursor{c: cur}, nil
}

func (s *MongoStore) Update(ctx context.Context, collection string, filter Predicate, mutation Mutations) (int64, error) {
	res, err := s.coll(collection).UpdateOne(ctx, ToBSON(filter), mutation.update())
	if err != nil {
		return 0, fmt.Errorf("store: update in %s: %w", collection, err)
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) UpdateMany(ctx context.Context, collection string, filter Predicate, mutation Mutations) (int64, error) {
	res, err := s.coll(collection).UpdateMany(ctx, ToBSON(filter), mutation.update())
	if err != nil {
		return 0, fmt.Errorf("store: updateMany in %s: %w", collection, err)
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection string, filter Predicate) error {
	_, err := s.coll(collection).DeleteMany(ctx, ToBSON(filter))
	if err != nil {
		return fmt.Errorf("store: delete in %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) DeleteAll(ctx context.Context, collection string) error {
	_, err := s.coll(collection).DeleteMany(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("store: deleteAll in %s: %w", collection, err)
	}
	return nil
}
