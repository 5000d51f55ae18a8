package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Validator is implemented by entity drafts and patches.
type Validator interface {
	Validate() error
}

// Collection is the typed CRUD surface for one entity type.
type Collection[E Validator, P Validator] struct {
	backend  Backend
	name     string
	query    Query
	defaults func(*E)
}

func newCollection[E Validator, P Validator](b Backend, name string, q Query, defaults func(*E)) *Collection[E, P] {
	return &Collection[E, P]{backend: b, name: name, query: q, defaults: defaults}
}

// Name returns the collection name.
func (c *Collection[E, P]) Name() string { return c.name }

// Query returns the ordering and filter used by List.
func (c *Collection[E, P]) Query() Query { return c.query }

func (c *Collection[E, P]) configured() bool {
	return c.backend != nil && !IsUnconfigured(c.backend)
}

// List returns every record in collection order. It returns an empty,
// non-nil slice when the store is not configured.
func (c *Collection[E, P]) List(ctx context.Context) ([]E, error) {
	if !c.configured() {
		return []E{}, nil
	}
	docs, err := c.backend.List(ctx, c.name, c.query)
	if err != nil {
		return []E{}, fmt.Errorf("listing %s: %w", c.name, err)
	}
	out := make([]E, 0, len(docs))
	for _, d := range docs {
		e, err := decodeEntity[E](d)
		if err != nil {
			return []E{}, fmt.Errorf("listing %s: %w", c.name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Get returns the record with the given ID.
func (c *Collection[E, P]) Get(ctx context.Context, id ID) (E, error) {
	var zero E
	if !c.configured() {
		return zero, ErrNotConfigured
	}
	if err := validateID(id); err != nil {
		return zero, err
	}
	d, err := c.backend.Get(ctx, c.name, string(id))
	if err != nil {
		return zero, fmt.Errorf("getting %s/%s: %w", c.name, id, err)
	}
	return decodeEntity[E](d)
}

// Create validates draft and stores it. Timestamps in the draft are ignored.
func (c *Collection[E, P]) Create(ctx context.Context, draft E) (E, error) {
	var zero E
	if !c.configured() {
		return zero, ErrNotConfigured
	}
	if c.defaults != nil {
		c.defaults(&draft)
	}
	if err := draft.Validate(); err != nil {
		return zero, err
	}

	fields, err := toFields(draft)
	if err != nil {
		return zero, err
	}
	var id ID
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			return zero, err
		}
	}
	StripReserved(fields)
	data, err := json.Marshal(fields)
	if err != nil {
		return zero, err
	}

	now := Now()
	d, err := c.backend.Insert(ctx, c.name, Document{ID: string(id), Data: data, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return zero, fmt.Errorf("creating %s: %w", c.name, err)
	}
	return decodeEntity[E](d)
}

// Update applies patch to the record with the given ID and bumps updated_at.
func (c *Collection[E, P]) Update(ctx context.Context, id ID, patch P) (E, error) {
	var zero E
	if !c.configured() {
		return zero, ErrNotConfigured
	}
	if err := validateID(id); err != nil {
		return zero, err
	}
	if err := patch.Validate(); err != nil {
		return zero, err
	}
	fields, err := toFields(patch)
	if err != nil {
		return zero, err
	}
	StripReserved(fields)

	d, err := c.backend.Update(ctx, c.name, string(id), fields, Now())
	if err != nil {
		return zero, fmt.Errorf("updating %s/%s: %w", c.name, id, err)
	}
	return decodeEntity[E](d)
}

// Delete removes the record with the given ID.
func (c *Collection[E, P]) Delete(ctx context.Context, id ID) error {
	if !c.configured() {
		return ErrNotConfigured
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, c.name, string(id)); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", c.name, id, err)
	}
	return nil
}

// ListAny is List with the result boxed, for callers that pick a
// collection by name.
func (c *Collection[E, P]) ListAny(ctx context.Context) (any, error) {
	return c.List(ctx)
}

// ListRange lists the collection and returns at most limit items starting
// at offset, plus the total count. An offset past the end yields an empty
// page.
func (c *Collection[E, P]) ListRange(ctx context.Context, offset, limit int) (any, int, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(items)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}
	return items[start:end], total, nil
}

// GetAny is Get with the result boxed.
func (c *Collection[E, P]) GetAny(ctx context.Context, id ID) (any, error) {
	return c.Get(ctx, id)
}

// Resource is the untyped view of a Collection.
type Resource interface {
	Name() string
	ListAny(ctx context.Context) (any, error)
	ListRange(ctx context.Context, offset, limit int) (any, int, error)
	GetAny(ctx context.Context, id ID) (any, error)
	Delete(ctx context.Context, id ID) error
}

func toFields(v any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return fields, nil
}

// decodeEntity fills E from the document data, then from the meta columns.
func decodeEntity[E any](d Document) (E, error) {
	var e E
	if len(d.Data) > 0 {
		if err := json.Unmarshal(d.Data, &e); err != nil {
			return e, fmt.Errorf("decoding %s: %w", d.ID, err)
		}
	}
	meta, err := json.Marshal(Meta{ID: ID(d.ID), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt})
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(meta, &e); err != nil {
		return e, fmt.Errorf("decoding %s: %w", d.ID, err)
	}
	return e, nil
}

// DataAccess bundles the typed collections over one Backend.
type DataAccess struct {
	backend Backend

	Blogs    *Collection[Blog, BlogPatch]
	Hacks    *Collection[Hack, HackPatch]
	Secrets  *Collection[Secret, SecretPatch]
	Projects *Collection[Project, ProjectPatch]
	Content  *Collection[PortfolioContent, PortfolioContentPatch]
}

// NewDataAccess wires every collection to b. A nil backend behaves as
// Unconfigured.
func NewDataAccess(b Backend) *DataAccess {
	if b == nil {
		b = Unconfigured{}
	}
	byCreated := Query{OrderBy: "created_at", Desc: true}
	return &DataAccess{
		backend:  b,
		Blogs:    newCollection[Blog, BlogPatch](b, CollectionBlogs, byCreated, blogDefaults),
		Hacks:    newCollection[Hack, HackPatch](b, CollectionHacks, byCreated, hackDefaults),
		Secrets:  newCollection[Secret, SecretPatch](b, CollectionSecrets, byCreated, secretDefaults),
		Projects: newCollection[Project, ProjectPatch](b, CollectionProjects, Query{OrderBy: "order_index"}, projectDefaults),
		Content: newCollection[PortfolioContent, PortfolioContentPatch](b, CollectionContent,
			Query{OrderBy: "section", Where: map[string]any{"published": true}}, contentDefaults),
	}
}

// Backend returns the underlying backend.
func (d *DataAccess) Backend() Backend { return d.backend }

// Configured reports whether a real store is behind the collections.
func (d *DataAccess) Configured() bool { return !IsUnconfigured(d.backend) }

// Resource looks up a collection by name.
func (d *DataAccess) Resource(name string) (Resource, bool) {
	switch name {
	case CollectionBlogs:
		return d.Blogs, true
	case CollectionHacks:
		return d.Hacks, true
	case CollectionSecrets:
		return d.Secrets, true
	case CollectionProjects:
		return d.Projects, true
	case CollectionContent:
		return d.Content, true
	}
	return nil, false
}

// Close closes the backend.
func (d *DataAccess) Close() error {
	if err := d.backend.Close(); err != nil && !errors.Is(err, ErrNotConfigured) {
		return err
	}
	return nil
}
