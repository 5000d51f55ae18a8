package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/storage/memory"
	"github.com/0xn1ku/nexusvault/storage/storagetest"
)

const testKey = "test-anon-key"

// fakePostgREST serves the subset of PostgREST the Store speaks, backed by
// an in-memory backend.
type fakePostgREST struct {
	t  *testing.T
	db *memory.Backend
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != testKey || r.Header.Get("Authorization") != "Bearer "+testKey {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
		return
	}
	collection := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	params := r.URL.Query()
	id := strings.TrimPrefix(params.Get("id"), "eq.")
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		if id != "" {
			doc, err := f.db.Get(ctx, collection, id)
			if errors.Is(err, storage.ErrNotFound) {
				f.writeRows(w)
				return
			}
			require.NoError(f.t, err)
			f.writeRows(w, doc)
			return
		}
		q := storage.Query{Where: map[string]any{}}
		for k, vs := range params {
			switch k {
			case "select":
			case "order":
				first := strings.Split(strings.Split(vs[0], ",")[0], ".")
				q.OrderBy = first[0]
				q.Desc = len(first) > 1 && first[1] == "desc"
			default:
				q.Where[k] = strings.TrimPrefix(vs[0], "eq.")
			}
		}
		docs, err := f.db.List(ctx, collection, q)
		require.NoError(f.t, err)
		f.writeRows(w, docs...)

	case http.MethodPost:
		doc := f.readRow(r)
		created, err := f.db.Insert(ctx, collection, doc)
		if errors.Is(err, storage.ErrConflict) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
			return
		}
		require.NoError(f.t, err)
		w.WriteHeader(http.StatusCreated)
		f.writeRows(w, created)

	case http.MethodPatch:
		current, err := f.db.Get(ctx, collection, id)
		if errors.Is(err, storage.ErrNotFound) || renderStamp(current.UpdatedAt) != strings.TrimPrefix(params.Get("updated_at"), "eq.") {
			f.writeRows(w)
			return
		}
		patch := f.readRow(r)
		var fields map[string]json.RawMessage
		require.NoError(f.t, json.Unmarshal(patch.Data, &fields))
		updated, err := f.db.Update(ctx, collection, id, fields, patch.UpdatedAt)
		require.NoError(f.t, err)
		f.writeRows(w, updated)

	case http.MethodDelete:
		doc, err := f.db.Get(ctx, collection, id)
		if errors.Is(err, storage.ErrNotFound) {
			f.writeRows(w)
			return
		}
		require.NoError(f.t, f.db.Delete(ctx, collection, id))
		f.writeRows(w, doc)
	}
}

func (f *fakePostgREST) readRow(r *http.Request) storage.Document {
	var row map[string]json.RawMessage
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&row))
	doc, err := rowToDocument(row)
	require.NoError(f.t, err)
	return doc
}

func (f *fakePostgREST) writeRows(w http.ResponseWriter, docs ...storage.Document) {
	rows := make([]map[string]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		row := map[string]json.RawMessage{}
		require.NoError(f.t, json.Unmarshal(d.Data, &row))
		row["id"], _ = json.Marshal(d.ID)
		row["created_at"], _ = json.Marshal(renderStamp(d.CreatedAt))
		row["updated_at"], _ = json.Marshal(renderStamp(d.UpdatedAt))
		rows = append(rows, row)
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(f.t, json.NewEncoder(w).Encode(rows))
}

// renderStamp formats timestamptz the way PostgREST does, with an explicit
// offset.
func renderStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000+00:00")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv := httptest.NewServer(&fakePostgREST{t: t, db: memory.New()})
	t.Cleanup(srv.Close)
	s, err := New(srv.URL+"/rest/v1", testKey)
	require.NoError(t, err)
	return s
}

func TestRESTBackend(t *testing.T) {
	storagetest.RunBackendTests(t, func(t *testing.T) storage.Backend { return newTestStore(t) })
}

func TestNew_Rejects(t *testing.T) {
	_, err := New("ftp://example.com", testKey)
	assert.Error(t, err)
	_, err = New("https://", testKey)
	assert.Error(t, err)
	_, err = New("https://example.supabase.co/rest/v1", "")
	assert.Error(t, err)
}

func TestListParams(t *testing.T) {
	p := listParams(storage.Query{OrderBy: "created_at", Desc: true})
	assert.Equal(t, "created_at.desc.nullslast,id.asc", p.Get("order"))
	assert.Equal(t, "*", p.Get("select"))

	p = listParams(storage.Query{OrderBy: "section", Where: map[string]any{"published": true}})
	assert.Equal(t, "section.asc.nullsfirst,id.asc", p.Get("order"))
	assert.Equal(t, "eq.true", p.Get("published"))

	assert.Equal(t, "id.asc", listParams(storage.Query{}).Get("order"))
}

func TestRemoteErrors(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"relation \"public.blogs\" does not exist"}`))
	}))
	defer srv.Close()

	s, err := New(srv.URL, testKey)
	require.NoError(t, err)

	status = http.StatusNotFound
	_, err = s.List(t.Context(), storage.CollectionBlogs, storage.Query{})
	var re *storage.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Equal(t, "list blogs", re.Op)
	assert.Contains(t, re.Message, "does not exist")

	status = http.StatusConflict
	_, err = s.Insert(t.Context(), storage.CollectionBlogs, storage.Document{Data: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestUnauthorised(t *testing.T) {
	srv := httptest.NewServer(&fakePostgREST{t: t, db: memory.New()})
	defer srv.Close()
	s, err := New(srv.URL+"/rest/v1", "wrong-key")
	require.NoError(t, err)

	_, err = s.Get(t.Context(), storage.CollectionSecrets, "1")
	var re *storage.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "Invalid API key", re.Message)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 6, 1, 12, 0, 0, 123_000_000, time.UTC)
	for _, in := range []string{`"2024-06-01T12:00:00.123456+00:00"`, `"2024-06-01T14:00:00.123+02:00"`, `"2024-06-01T12:00:00.123"`} {
		got, err := parseTime(json.RawMessage(in))
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s parsed as %s", in, got)
	}
	_, err := parseTime(json.RawMessage(`"yesterday"`))
	assert.Error(t, err)
}

func TestRowToDocument_NumericID(t *testing.T) {
	d, err := rowToDocument(map[string]json.RawMessage{
		"id":    json.RawMessage(`42`),
		"title": json.RawMessage(`"x"`),
	})
	require.NoError(t, err)
	assert.Equal(t, "42", d.ID)
	assert.JSONEq(t, `{"title":"x"}`, string(d.Data))
}

// microsecondRow serves one blog row whose updated_at has microsecond
// precision, as a Postgres timestamp column does. PATCH only matches when
// the filter repeats the stored text exactly.
type microsecondRow struct {
	t         *testing.T
	updatedAt string
	filters   []string
	bumpOnGet bool
}

func (m *microsecondRow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	row := func() []map[string]any {
		return []map[string]any{{
			"id": 7, "title": "Hello", "created_at": "2024-06-01T09:00:00.000001", "updated_at": m.updatedAt,
		}}
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		require.NoError(m.t, json.NewEncoder(w).Encode(row()))
		if m.bumpOnGet {
			m.updatedAt = "2024-06-01T10:00:05.000001"
		}
	case http.MethodPatch:
		filter := r.URL.Query().Get("updated_at")
		m.filters = append(m.filters, filter)
		if filter != "eq."+m.updatedAt {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		var patch map[string]string
		require.NoError(m.t, json.NewDecoder(r.Body).Decode(&patch))
		m.updatedAt = patch["updated_at"]
		out := row()
		out[0]["title"] = patch["title"]
		require.NoError(m.t, json.NewEncoder(w).Encode(out))
	}
}

func TestUpdate_MicrosecondTimestamp(t *testing.T) {
	fake := &microsecondRow{t: t, updatedAt: "2024-06-01T10:00:00.123456"}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s, err := New(srv.URL, testKey)
	require.NoError(t, err)

	at := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	doc, err := s.Update(t.Context(), storage.CollectionBlogs, "7",
		map[string]json.RawMessage{"title": json.RawMessage(`"Updated"`)}, at)
	require.NoError(t, err)
	assert.Equal(t, []string{"eq.2024-06-01T10:00:00.123456"}, fake.filters)
	assert.Equal(t, "7", doc.ID)
	assert.JSONEq(t, `{"title":"Updated"}`, string(doc.Data))
	assert.True(t, doc.UpdatedAt.Equal(at))
}

func TestUpdate_StaleRow(t *testing.T) {
	fake := &microsecondRow{t: t, updatedAt: "2024-06-01T10:00:00.123456", bumpOnGet: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s, err := New(srv.URL, testKey)
	require.NoError(t, err)

	_, err = s.Update(t.Context(), storage.CollectionBlogs, "7",
		map[string]json.RawMessage{"title": json.RawMessage(`"Updated"`)}, time.Now())
	require.ErrorIs(t, err, storage.ErrStale)
	assert.NotErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, "blogs/7: record modified concurrently", err.Error())
}
