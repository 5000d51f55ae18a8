// Package storage is the data-access layer for portfolio entities. Typed
// collections sit on top of a Backend that stores schemaless documents;
// backends live in the sub-packages and are picked once at startup.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names, shared by every backend.
const (
	CollectionBlogs    = "blogs"
	CollectionHacks    = "hacks"
	CollectionSecrets  = "secrets"
	CollectionProjects = "projects"
	CollectionContent  = "portfolio_content"
)

// Collections lists every known collection name.
func Collections() []string {
	return []string{CollectionBlogs, CollectionHacks, CollectionSecrets, CollectionProjects, CollectionContent}
}

// Document is a stored record. Data holds the entity fields without the
// id and timestamp columns, which are carried separately.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Query controls List ordering and filtering. Where holds equality filters
// on top-level data fields; values are strings, bools or numbers.
type Query struct {
	OrderBy string
	Desc    bool
	Where   map[string]any
}

// Backend stores documents grouped by collection. Implementations must be
// safe for concurrent use and must not retry failed calls.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// List returns the documents of collection matching q, ordered by
	// q.OrderBy with ties broken by ID ascending.
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Insert stores doc. An empty ID is assigned by the backend.
	Insert(ctx context.Context, collection string, doc Document) (Document, error)
	// Update merges fields into the stored data and sets updated_at to
	// NextUpdatedAt(previous, at).
	Update(ctx context.Context, collection, id string, fields map[string]json.RawMessage, at time.Time) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	Close() error
}
