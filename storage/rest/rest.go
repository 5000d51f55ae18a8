// Package rest implements storage.Backend against a PostgREST endpoint such
// as the one a hosted Supabase project exposes. Each collection is a table of
// the same name with id, created_at and updated_at columns next to the
// entity fields.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0xn1ku/nexusvault/storage"
)

// DefaultTimeout bounds every request made by the default HTTP client.
const DefaultTimeout = 30 * time.Second

// timeLayouts covers timestamptz output and bare timestamp columns.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

// Store implements storage.Backend over HTTP.
type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store rooted at baseURL, the PostgREST root (for Supabase,
// the project URL followed by /rest/v1). apiKey is sent both as the apikey
// header and as a bearer token.
func New(baseURL, apiKey string, opts ...Option) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid rest endpoint %q", baseURL)
	}
	if apiKey == "" {
		return nil, errors.New("rest api key is empty")
	}
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Name() string { return "rest" }

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) do(ctx context.Context, op, method, collection string, params url.Values, body any) ([]storage.Document, error) {
	rows, err := s.doRows(ctx, op, method, collection, params, body)
	if err != nil {
		return nil, err
	}
	return toDocuments(op, rows)
}

func (s *Store) doRows(ctx context.Context, op, method, collection string, params url.Values, body any) ([]map[string]json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	endpoint := s.baseURL + "/" + url.PathEscape(collection)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	s.log.DebugContext(ctx, "rest request", "method", method, "collection", collection)
	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &storage.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &storage.RemoteError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, remoteError(op, resp.StatusCode, raw)
	}
	return decodeRows(op, raw)
}

// remoteError maps a PostgREST error body. 409 is a unique violation.
func remoteError(op string, status int, body []byte) error {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &e) == nil {
		msg = e.Message
		if msg == "" {
			msg = e.Error
		}
	}
	re := &storage.RemoteError{Op: op, Status: status, Message: msg}
	if status == http.StatusConflict {
		re.Err = storage.ErrConflict
	}
	return re
}

func decodeRows(op string, raw []byte) ([]map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &storage.RemoteError{Op: op, Message: "unexpected response body", Err: err}
	}
	return rows, nil
}

func toDocuments(op string, rows []map[string]json.RawMessage) ([]storage.Document, error) {
	docs := make([]storage.Document, 0, len(rows))
	for _, row := range rows {
		d, err := rowToDocument(row)
		if err != nil {
			return nil, &storage.RemoteError{Op: op, Message: "unexpected row", Err: err}
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func rowToDocument(row map[string]json.RawMessage) (storage.Document, error) {
	var (
		d   storage.Document
		err error
	)
	if raw, ok := row["id"]; ok {
		var id storage.ID
		if err := json.Unmarshal(raw, &id); err != nil {
			return d, fmt.Errorf("id: %w", err)
		}
		d.ID = string(id)
	}
	if d.CreatedAt, err = parseTime(row["created_at"]); err != nil {
		return d, fmt.Errorf("created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(row["updated_at"]); err != nil {
		return d, fmt.Errorf("updated_at: %w", err)
	}
	storage.StripReserved(row)
	if d.Data, err = json.Marshal(row); err != nil {
		return d, err
	}
	return d, nil
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(storage.TimestampPrecision), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(storage.TimestampPrecision).Format(time.RFC3339Nano)
}

// filterValue renders an equality filter in PostgREST's operator syntax.
func filterValue(v any) string {
	switch v := v.(type) {
	case string:
		return "eq." + v
	case time.Time:
		return "eq." + formatTime(v)
	default:
		return fmt.Sprintf("eq.%v", v)
	}
}

func listParams(q storage.Query) url.Values {
	params := url.Values{"select": {"*"}}
	for k, v := range q.Where {
		params.Set(k, filterValue(v))
	}
	switch q.OrderBy {
	case "", "id":
		dir := "asc"
		if q.OrderBy == "id" && q.Desc {
			dir = "desc"
		}
		params.Set("order", "id."+dir)
	default:
		dir := "asc.nullsfirst"
		if q.Desc {
			dir = "desc.nullslast"
		}
		params.Set("order", q.OrderBy+"."+dir+",id.asc")
	}
	return params
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

func (s *Store) List(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	return s.do(ctx, "list "+collection, http.MethodGet, collection, listParams(q), nil)
}

func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	params := byID(id)
	params.Set("select", "*")
	docs, err := s.do(ctx, "get "+collection, http.MethodGet, collection, params, nil)
	if err != nil {
		return storage.Document{}, err
	}
	if len(docs) == 0 {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return docs[0], nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	row := map[string]json.RawMessage{}
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &row); err != nil {
			return storage.Document{}, fmt.Errorf("decoding document: %w", err)
		}
	}
	storage.StripReserved(row)
	row["id"], _ = json.Marshal(doc.ID)
	row["created_at"], _ = json.Marshal(formatTime(doc.CreatedAt))
	row["updated_at"], _ = json.Marshal(formatTime(doc.UpdatedAt))

	docs, err := s.do(ctx, "insert "+collection, http.MethodPost, collection, nil, row)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, doc.ID, err)
		}
		return storage.Document{}, err
	}
	if len(docs) == 0 {
		return storage.Document{}, &storage.RemoteError{Op: "insert " + collection, Message: "no row returned"}
	}
	return docs[0], nil
}

// Update reads the current row to compute the next updated_at, then patches
// it only if updated_at still holds the text the read returned. The filter
// reuses that text verbatim, so rows written at microsecond precision match.
// A concurrent writer in between yields ErrStale; the call is not retried.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]json.RawMessage, at time.Time) (storage.Document, error) {
	op := "get " + collection
	params := byID(id)
	params.Set("select", "*")
	rows, err := s.doRows(ctx, op, http.MethodGet, collection, params, nil)
	if err != nil {
		return storage.Document{}, err
	}
	if len(rows) == 0 {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	stamp, err := rawTimestamp(rows[0]["updated_at"])
	if err != nil {
		return storage.Document{}, &storage.RemoteError{Op: op, Message: "unexpected row", Err: err}
	}
	current, err := rowToDocument(rows[0])
	if err != nil {
		return storage.Document{}, &storage.RemoteError{Op: op, Message: "unexpected row", Err: err}
	}

	row := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	storage.StripReserved(row)
	row["updated_at"], _ = json.Marshal(formatTime(storage.NextUpdatedAt(current.UpdatedAt, at)))

	params = byID(id)
	if stamp == "" {
		params.Set("updated_at", "is.null")
	} else {
		params.Set("updated_at", "eq."+stamp)
	}
	docs, err := s.do(ctx, "update "+collection, http.MethodPatch, collection, params, row)
	if err != nil {
		return storage.Document{}, err
	}
	if len(docs) == 0 {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrStale)
	}
	return docs[0], nil
}

// rawTimestamp returns a timestamp column exactly as the server rendered it,
// or "" for null.
func rawTimestamp(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	docs, err := s.do(ctx, "delete "+collection, http.MethodDelete, collection, byID(id), nil)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, storage.ErrNotFound)
	}
	return nil
}
