// Package postgres implements storage.Backend backed by PostgreSQL.
//
// Every collection shares one documents table keyed by (collection, id).
// Entity fields live in a JSONB column so ordering and equality filters run
// server-side without a table per entity.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xn1ku/nexusvault/storage"
)

// Store implements storage.Backend backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Backend = (*Store)(nil)

// New returns a Store backed by the given pgx connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewFromDSN creates a connection pool from a DSN string, applies
// migrations, and returns a new Store.
func NewFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Name() string { return "postgres" }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func remote(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &storage.RemoteError{Op: op, Err: err}
}

const selectColumns = `id, data, created_at, updated_at`

func scanDocument(row pgx.Row) (storage.Document, error) {
	var (
		d    storage.Document
		data []byte
	)
	if err := row.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return storage.Document{}, err
	}
	d.Data = data
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

// buildListQuery renders q as SQL. Field names are always bound as
// parameters, never interpolated.
func buildListQuery(collection string, q storage.Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{collection}
	sb.WriteString(`SELECT ` + selectColumns + ` FROM documents WHERE collection = $1`)

	if len(q.Where) > 0 {
		filter, err := json.Marshal(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("encoding filter: %w", err)
		}
		args = append(args, filter)
		fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
	}

	dir, nulls := "ASC", "NULLS FIRST"
	if q.Desc {
		dir, nulls = "DESC", "NULLS LAST"
	}
	switch q.OrderBy {
	case "":
		sb.WriteString(` ORDER BY id ASC`)
	case "id", "created_at", "updated_at":
		fmt.Fprintf(&sb, ` ORDER BY %s %s, id ASC`, q.OrderBy, dir)
	default:
		args = append(args, q.OrderBy)
		fmt.Fprintf(&sb, ` ORDER BY data -> $%d::text %s %s, id ASC`, len(args), dir, nulls)
	}
	return sb.String(), args, nil
}

func (s *Store) List(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	sql, args, err := buildListQuery(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, remote("list "+collection, err)
	}
	defer rows.Close()

	docs := []storage.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, remote("list "+collection, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, remote("list "+collection, err)
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = $1 AND id = $2`,
		collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, remote("get "+collection, err)
	}
	return d, nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	data := []byte(doc.Data)
	if len(data) == 0 {
		data = []byte(`{}`)
	}
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5)
		 ON CONFLICT (collection, id) DO NOTHING
		 RETURNING `+selectColumns,
		collection, doc.ID, data, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, doc.ID, storage.ErrConflict)
	}
	if err != nil {
		return storage.Document{}, remote("insert "+collection, err)
	}
	return d, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]json.RawMessage, at time.Time) (storage.Document, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return storage.Document{}, fmt.Errorf("encoding patch: %w", err)
	}
	at = at.UTC().Truncate(storage.TimestampPrecision)
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`UPDATE documents
		 SET data = data || $3::jsonb,
		     updated_at = GREATEST($4::timestamptz, date_trunc('milliseconds', updated_at) + interval '1 millisecond')
		 WHERE collection = $1 AND id = $2
		 RETURNING `+selectColumns,
		collection, id, patch, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, remote("update "+collection, err)
	}
	return d, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return remote("delete "+collection, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return nil
}
