// Package bbolt provides a BBolt-backed storage backend. Each collection is a
// top-level bucket keyed by record ID.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/0xn1ku/nexusvault/storage"
)

// Store implements storage.Backend backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Backend = (*Store)(nil)

// record is the on-disk form of a document.
type record struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// Open opens a BBolt database at the given path and returns a new Store.
func Open(path string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db), nil
}

func (s *Store) Name() string { return "bbolt" }

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(d storage.Document) ([]byte, error) {
	return json.Marshal(record{Data: d.Data, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()})
}

func decode(id string, raw []byte) (storage.Document, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return storage.Document{}, fmt.Errorf("decoding %s: %w", id, err)
	}
	return storage.Document{ID: id, Data: r.Data, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}, nil
}

func (s *Store) List(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs := []storage.Document{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			d, err := decode(string(k), v)
			if err != nil {
				return err
			}
			if storage.MatchDocument(d, q.Where) {
				docs = append(docs, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	storage.SortDocuments(docs, q)
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	var doc storage.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		var err error
		doc, err = decode(id, data)
		return err
	})
	return doc, err
}

func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		if b.Get([]byte(doc.ID)) != nil {
			return fmt.Errorf("%s/%s: %w", collection, doc.ID, storage.ErrConflict)
		}
		data, err := encode(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(doc.ID), data)
	})
	if err != nil {
		return storage.Document{}, err
	}
	return storage.CloneDocument(doc), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]json.RawMessage, at time.Time) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	var doc storage.Document
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		existing := b.Get([]byte(id))
		if existing == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		var err error
		doc, err = decode(id, existing)
		if err != nil {
			return err
		}
		if doc.Data, err = storage.ApplyPatch(doc.Data, fields); err != nil {
			return err
		}
		doc.UpdatedAt = storage.NextUpdatedAt(doc.UpdatedAt, at)
		data, err := encode(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	return doc, err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil || b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}
