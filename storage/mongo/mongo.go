// Package mongo implements storage.Backend on MongoDB. Each collection maps
// to a Mongo collection of the same name; entity fields are kept under an
// embedded "data" document so filters and sorts run server-side.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/0xn1ku/nexusvault/storage"
)

// DefaultDatabase is used when the connection string does not name one.
const DefaultDatabase = "nexusvault"

// Store implements storage.Backend backed by MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Backend = (*Store)(nil)

type document struct {
	ID        string    `bson:"_id"`
	Data      bson.Raw  `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Connect dials uri, verifies the connection and returns a Store using
// database (DefaultDatabase when empty).
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if database == "" {
		database = DefaultDatabase
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &Store{client: cli, db: cli.Database(database)}, nil
}

func (s *Store) Name() string { return "mongo" }

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection in the store's database.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func remote(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &storage.RemoteError{Op: op, Err: err}
}

func toBSON(data json.RawMessage) (bson.D, error) {
	if len(data) == 0 {
		return bson.D{}, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, false, &d); err != nil {
		return nil, fmt.Errorf("converting document: %w", err)
	}
	return d, nil
}

func fromBSON(raw bson.Raw) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`{}`), nil
	}
	out, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("converting document: %w", err)
	}
	return out, nil
}

func (d document) toStorage() (storage.Document, error) {
	data, err := fromBSON(d.Data)
	if err != nil {
		return storage.Document{}, err
	}
	return storage.Document{ID: d.ID, Data: data, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()}, nil
}

func fieldPath(field string) string {
	switch field {
	case "id":
		return "_id"
	case "created_at", "updated_at":
		return field
	}
	return "data." + field
}

func buildFilter(where map[string]any) bson.D {
	filter := bson.D{}
	for k, v := range where {
		filter = append(filter, bson.E{Key: fieldPath(k), Value: v})
	}
	return filter
}

func buildSort(q storage.Query) bson.D {
	if q.OrderBy == "" || q.OrderBy == "id" {
		dir := 1
		if q.OrderBy == "id" && q.Desc {
			dir = -1
		}
		return bson.D{{Key: "_id", Value: dir}}
	}
	dir := 1
	if q.Desc {
		dir = -1
	}
	return bson.D{{Key: fieldPath(q.OrderBy), Value: dir}, {Key: "_id", Value: 1}}
}

func (s *Store) List(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	cur, err := s.db.Collection(collection).Find(ctx, buildFilter(q.Where), options.Find().SetSort(buildSort(q)))
	if err != nil {
		return nil, remote("list "+collection, err)
	}
	defer cur.Close(ctx)

	docs := []storage.Document{}
	for cur.Next(ctx) {
		var d document
		if err := cur.Decode(&d); err != nil {
			return nil, remote("list "+collection, err)
		}
		sd, err := d.toStorage()
		if err != nil {
			return nil, err
		}
		docs = append(docs, sd)
	}
	if err := cur.Err(); err != nil {
		return nil, remote("list "+collection, err)
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	var d document
	err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, remote("get "+collection, err)
	}
	return d.toStorage()
}

func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	data, err := toBSON(doc.Data)
	if err != nil {
		return storage.Document{}, err
	}
	_, err = s.db.Collection(collection).InsertOne(ctx, bson.D{
		{Key: "_id", Value: doc.ID},
		{Key: "data", Value: data},
		{Key: "created_at", Value: doc.CreatedAt.UTC()},
		{Key: "updated_at", Value: doc.UpdatedAt.UTC()},
	})
	if mongo.IsDuplicateKeyError(err) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, doc.ID, storage.ErrConflict)
	}
	if err != nil {
		return storage.Document{}, remote("insert "+collection, err)
	}
	return s.Get(ctx, collection, doc.ID)
}

// buildUpdate is an aggregation pipeline so updated_at can be computed from
// the stored value in the same round trip. Values are wrapped in $literal so
// strings that start with "$" are not read as field paths.
func buildUpdate(fields map[string]json.RawMessage, at time.Time) (mongo.Pipeline, error) {
	set := bson.D{}
	for k, raw := range fields {
		var wrapped struct {
			V any `bson:"v"`
		}
		if err := bson.UnmarshalExtJSON(wrapValue(raw), false, &wrapped); err != nil {
			return nil, fmt.Errorf("converting field %s: %w", k, err)
		}
		set = append(set, bson.E{Key: "data." + k, Value: bson.D{{Key: "$literal", Value: wrapped.V}}})
	}
	set = append(set, bson.E{Key: "updated_at", Value: bson.D{{Key: "$max", Value: bson.A{
		at.UTC().Truncate(storage.TimestampPrecision),
		bson.D{{Key: "$add", Value: bson.A{"$updated_at", 1}}},
	}}}})
	return mongo.Pipeline{{{Key: "$set", Value: set}}}, nil
}

// wrapValue turns a bare JSON value into {"v": value} so it can be parsed as
// extended JSON, which only accepts documents at the top level.
func wrapValue(raw json.RawMessage) []byte {
	out := make([]byte, 0, len(raw)+6)
	out = append(out, `{"v":`...)
	out = append(out, raw...)
	return append(out, '}')
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]json.RawMessage, at time.Time) (storage.Document, error) {
	pipeline, err := buildUpdate(fields, at)
	if err != nil {
		return storage.Document{}, err
	}
	var d document
	err = s.db.Collection(collection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, remote("update "+collection, err)
	}
	return d.toStorage()
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return remote("delete "+collection, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return nil
}
