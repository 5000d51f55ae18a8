package memory

import (
	"encoding/json"
	"testing"

	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/storage/storagetest"
)

func TestMemoryBackend(t *testing.T) {
	storagetest.RunBackendTests(t, func(*testing.T) storage.Backend { return New() })
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	b := New()
	now := storage.Now()
	doc, err := b.Insert(t.Context(), "c", storage.Document{Data: json.RawMessage(`{"a":1}`), CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	doc.Data[1] = 'X'
	got, err := b.Get(t.Context(), "c", doc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != `{"a":1}` {
		t.Errorf("memory backend should return clones of documents, got %s", got.Data)
	}
}
