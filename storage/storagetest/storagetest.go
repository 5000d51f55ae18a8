// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xn1ku/nexusvault/storage"
)

// RunBackendTests exercises b through the raw Backend interface and through
// DataAccess. newBackend must return an empty backend; it is closed by the
// suite.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Helper()

	t.Run("InsertGetDelete", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := t.Context()
		now := storage.Now()

		doc, err := b.Insert(ctx, storage.CollectionBlogs, storage.Document{
			Data: json.RawMessage(`{"title":"hello"}`), CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		require.NotEmpty(t, doc.ID)
		assert.True(t, doc.CreatedAt.Equal(now))

		got, err := b.Get(ctx, storage.CollectionBlogs, doc.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"hello"}`, string(got.Data))
		assert.True(t, got.UpdatedAt.Equal(now))

		_, err = b.Insert(ctx, storage.CollectionBlogs, storage.Document{ID: doc.ID, Data: json.RawMessage(`{}`), CreatedAt: now, UpdatedAt: now})
		assert.ErrorIs(t, err, storage.ErrConflict)

		require.NoError(t, b.Delete(ctx, storage.CollectionBlogs, doc.ID))
		_, err = b.Get(ctx, storage.CollectionBlogs, doc.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, b.Delete(ctx, storage.CollectionBlogs, doc.ID), storage.ErrNotFound)
	})

	t.Run("UpdateBumpsTimestamp", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := t.Context()
		now := storage.Now()

		doc, err := b.Insert(ctx, storage.CollectionSecrets, storage.Document{
			Data: json.RawMessage(`{"key":"k","value":"v"}`), CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)

		// An update stamped in the past still moves updated_at forward.
		updated, err := b.Update(ctx, storage.CollectionSecrets, doc.ID,
			map[string]json.RawMessage{"value": json.RawMessage(`"v2"`)}, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(doc.UpdatedAt), "updated_at %s must be after %s", updated.UpdatedAt, doc.UpdatedAt)
		assert.True(t, updated.CreatedAt.Equal(doc.CreatedAt))
		assert.JSONEq(t, `{"key":"k","value":"v2"}`, string(updated.Data))

		_, err = b.Update(ctx, storage.CollectionSecrets, "missing", map[string]json.RawMessage{}, now)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListOrderAndFilter", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := t.Context()
		now := storage.Now()

		for i, section := range []string{"skills", "about", "hero", "contact"} {
			data, _ := json.Marshal(map[string]any{"section": section, "published": section != "contact", "content": map[string]any{}})
			_, err := b.Insert(ctx, storage.CollectionContent, storage.Document{
				Data: data, CreatedAt: now.Add(time.Duration(i) * time.Second), UpdatedAt: now,
			})
			require.NoError(t, err)
		}

		q := storage.Query{OrderBy: "section", Where: map[string]any{"published": true}}
		docs, err := b.List(ctx, storage.CollectionContent, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"about", "hero", "skills"}, sections(t, docs))

		again, err := b.List(ctx, storage.CollectionContent, q)
		require.NoError(t, err)
		assert.Equal(t, ids(docs), ids(again), "listing must be stable")

		byCreated, err := b.List(ctx, storage.CollectionContent, storage.Query{OrderBy: "created_at", Desc: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"contact", "hero", "about", "skills"}, sections(t, byCreated))

		empty, err := b.List(ctx, storage.CollectionHacks, storage.Query{})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("DataAccess", func(t *testing.T) {
		b := newBackend(t)
		da := storage.NewDataAccess(b)
		defer da.Close()
		ctx := t.Context()
		require.True(t, da.Configured())

		for i, title := range []string{"second", "first", "third"} {
			_, err := da.Projects.Create(ctx, storage.Project{Title: title, Description: "d", OrderIndex: []int{2, 1, 3}[i]})
			require.NoError(t, err)
		}
		projects, err := da.Projects.List(ctx)
		require.NoError(t, err)
		require.Len(t, projects, 3)
		assert.Equal(t, "first", projects[0].Title)
		assert.Equal(t, "third", projects[2].Title)
		assert.Equal(t, []string{}, projects[0].TechStack)

		secret, err := da.Secrets.Create(ctx, storage.Secret{Key: "api_key", Value: "c2VhbGVk", Encrypted: true})
		require.NoError(t, err)
		assert.Equal(t, "general", secret.Category)
		assert.NotEmpty(t, secret.ID)

		newValue := "bmV3"
		updated, err := da.Secrets.Update(ctx, secret.ID, storage.SecretPatch{Value: &newValue})
		require.NoError(t, err)
		assert.Equal(t, "bmV3", updated.Value)
		assert.Equal(t, "api_key", updated.Key)
		assert.True(t, updated.UpdatedAt.After(secret.UpdatedAt))

		got, err := da.Secrets.Get(ctx, secret.ID)
		require.NoError(t, err)
		assert.Equal(t, updated.Value, got.Value)

		require.NoError(t, da.Secrets.Delete(ctx, secret.ID))
		_, err = da.Secrets.Get(ctx, secret.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ConcurrentInserts", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		ctx := t.Context()

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				now := storage.Now()
				_, err := b.Insert(ctx, storage.CollectionHacks, storage.Document{Data: json.RawMessage(`{"title":"x"}`), CreatedAt: now, UpdatedAt: now})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		docs, err := b.List(ctx, storage.CollectionHacks, storage.Query{})
		require.NoError(t, err)
		assert.Len(t, docs, 8)
	})
}

func ids(docs []storage.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func sections(t *testing.T, docs []storage.Document) []string {
	t.Helper()
	out := make([]string, len(docs))
	for i, d := range docs {
		var v struct {
			Section string `json:"section"`
		}
		require.NoError(t, json.Unmarshal(d.Data, &v))
		out[i] = v.Section
	}
	return out
}
