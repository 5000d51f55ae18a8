// Package memory provides a thread-safe in-memory implementation of storage.Backend.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xn1ku/nexusvault/storage"
)

// Backend is a thread-safe in-memory storage.Backend.
// Suitable for testing, demos, and single-process use cases.
type Backend struct {
	mu   sync.RWMutex
	data map[string]map[string]storage.Document
}

var _ storage.Backend = (*Backend)(nil)

// New creates a new empty in-memory Backend.
func New() *Backend {
	return &Backend{data: make(map[string]map[string]storage.Document)}
}

func (b *Backend) Name() string { return "memory" }

func (b *Backend) Close() error { return nil }

func (b *Backend) List(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	docs := make([]storage.Document, 0, len(b.data[collection]))
	for _, d := range b.data[collection] {
		if storage.MatchDocument(d, q.Where) {
			docs = append(docs, storage.CloneDocument(d))
		}
	}
	storage.SortDocuments(docs, q)
	return docs, nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getLocked(collection, id)
}

func (b *Backend) getLocked(collection, id string) (storage.Document, error) {
	d, ok := b.data[collection][id]
	if !ok {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return storage.CloneDocument(d), nil
}

func (b *Backend) Insert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, ok := b.data[collection]; !ok {
		b.data[collection] = make(map[string]storage.Document)
	}
	if _, exists := b.data[collection][doc.ID]; exists {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, doc.ID, storage.ErrConflict)
	}
	doc = storage.CloneDocument(doc)
	b.data[collection][doc.ID] = doc
	return storage.CloneDocument(doc), nil
}

func (b *Backend) Update(ctx context.Context, collection, id string, fields map[string]json.RawMessage, at time.Time) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.getLocked(collection, id)
	if err != nil {
		return storage.Document{}, err
	}
	data, err := storage.ApplyPatch(d.Data, fields)
	if err != nil {
		return storage.Document{}, err
	}
	d.Data = data
	d.UpdatedAt = storage.NextUpdatedAt(d.UpdatedAt, at)
	b.data[collection][id] = d
	return storage.CloneDocument(d), nil
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.data[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	delete(b.data[collection], id)
	return nil
}
