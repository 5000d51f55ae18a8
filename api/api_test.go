package api_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/0xn1ku/nexusvault/api"
	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/payload"
	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/storage/memory"
	"github.com/0xn1ku/nexusvault/vault"
)

const passphrase = "correct horse battery staple"

var fastKDF = crypto.KDFParams{Algorithm: crypto.AlgPBKDF2SHA256, Iterations: crypto.MinIterations, KeyBits: crypto.KeyBits}

// logBuffer collects log output written from server goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	logBuf *logBuffer
}

func sealed(t *testing.T, opts ...payload.SealOption) payload.Payload {
	t.Helper()
	p, err := payload.Seal(
		map[string]string{"api_key": "abc123", "db_password": "hunter2"},
		passphrase, time.Hour,
		append([]payload.SealOption{payload.WithKDF(fastKDF)}, opts...)...,
	)
	require.NoError(t, err)
	return p
}

func newEnv(t *testing.T, p payload.Payload, data *storage.DataAccess, opts ...api.Option) *testEnv {
	t.Helper()
	buf := &logBuffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	a := api.New(vault.NewSession(nil, p), data, append([]api.Option{api.WithLogger(logger)}, opts...)...)
	t.Cleanup(a.Close)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, logBuf: buf}
}

func (e *testEnv) do(method, path string, body any) *http.Response {
	e.t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(e.t.Context(), method, e.srv.URL+path, r)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) unlock(pass string) *http.Response {
	return e.do(http.MethodPost, "/vault/unlock", api.UnlockRequest{Passphrase: pass})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func withRecords(t *testing.T) *storage.DataAccess {
	t.Helper()
	data := storage.NewDataAccess(memory.New())
	_, err := data.Secrets.Create(t.Context(), storage.Secret{
		Meta:  storage.Meta{ID: "db_url"},
		Key:   "DB_URL",
		Value: "postgres://admin:s3cret@db/site",
	})
	require.NoError(t, err)
	_, err = data.Blogs.Create(t.Context(), storage.Blog{Title: "Hello", Content: "First post", Author: "0xn1ku"})
	require.NoError(t, err)
	return data
}

func TestVaultStatus_Locked(t *testing.T) {
	p := sealed(t)
	e := newEnv(t, p, nil)

	resp := e.do(http.MethodGet, "/vault/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	st := decode[api.VaultStatusResponse](t, resp)
	assert.Equal(t, "locked", st.Phase)
	assert.Empty(t, st.Reason)
	assert.False(t, st.Expired)
	assert.Zero(t, st.SecretCount)
	assert.True(t, st.ExpiresAt.Equal(p.ExpiresAt))
}

func TestUnlock_WrongPassphrase(t *testing.T) {
	e := newEnv(t, sealed(t), nil)

	resp := e.unlock("not the passphrase")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "access denied", decode[api.ErrorResponse](t, resp).Error)

	st := decode[api.VaultStatusResponse](t, e.do(http.MethodGet, "/vault/", nil))
	assert.Equal(t, "denied", st.Phase)
	assert.Equal(t, "invalid_passphrase", st.Reason)

	assert.Contains(t, e.logBuf.String(), `"event":"vault_denied"`)
	assert.NotContains(t, e.logBuf.String(), "not the passphrase")
}

func TestUnlock_EmptyPassphraseDenied(t *testing.T) {
	e := newEnv(t, sealed(t), nil)
	resp := e.unlock("")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnlock_InvalidBody(t *testing.T) {
	e := newEnv(t, sealed(t), nil)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, e.srv.URL+"/vault/unlock", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnlock_Expired(t *testing.T) {
	p := sealed(t, payload.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	e := newEnv(t, p, nil)

	resp := e.unlock(passphrase)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	st := decode[api.VaultStatusResponse](t, e.do(http.MethodGet, "/vault/", nil))
	assert.Equal(t, "expired", st.Reason)
	assert.True(t, st.Expired)
}

func TestUnlockRevealHideLock(t *testing.T) {
	e := newEnv(t, sealed(t), nil)

	resp := e.unlock(passphrase)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[api.VaultStatusResponse](t, resp)
	assert.Equal(t, "unlocked", st.Phase)
	assert.Equal(t, 2, st.SecretCount)

	list := decode[api.ListSecretsResponse](t, e.do(http.MethodGet, "/vault/secrets", nil))
	require.Len(t, list.Secrets, 2)
	assert.Equal(t, "api_key", list.Secrets[0].ID)
	assert.Equal(t, "db_password", list.Secrets[1].ID)
	assert.False(t, list.Secrets[0].Revealed)

	resp = e.do(http.MethodPost, "/vault/secrets/api_key/reveal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.RevealResponse{ID: "api_key", Value: "abc123"}, decode[api.RevealResponse](t, resp))

	st = decode[api.VaultStatusResponse](t, e.do(http.MethodGet, "/vault/", nil))
	assert.Equal(t, []string{"api_key"}, st.RevealedIDs)
	assert.Contains(t, e.logBuf.String(), `"event":"secret_revealed"`)
	assert.NotContains(t, e.logBuf.String(), "abc123")

	resp = e.do(http.MethodDelete, "/vault/secrets/api_key/reveal", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	st = decode[api.VaultStatusResponse](t, e.do(http.MethodGet, "/vault/", nil))
	assert.Empty(t, st.RevealedIDs)

	resp = e.do(http.MethodPost, "/vault/secrets/missing/reveal", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(http.MethodPost, "/vault/lock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "locked", decode[api.VaultStatusResponse](t, resp).Phase)

	resp = e.do(http.MethodPost, "/vault/secrets/api_key/reveal", nil)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	resp = e.do(http.MethodGet, "/vault/secrets", nil)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestUnlock_RateLimited(t *testing.T) {
	e := newEnv(t, sealed(t), nil, api.WithUnlockRate(rate.Every(time.Hour), 1))

	resp := e.unlock("wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.unlock(passphrase)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, e.logBuf.String(), `"event":"unlock_rate_limited"`)
}

func TestRecords_Unconfigured(t *testing.T) {
	e := newEnv(t, sealed(t), nil)

	resp := e.do(http.MethodGet, "/records/blogs/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[map[string]any](t, resp)
	assert.Equal(t, false, page["configured"])
	assert.Equal(t, []any{}, page["items"])
	assert.EqualValues(t, 0, page["total_count"])

	resp = e.do(http.MethodGet, "/records/blogs/1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRecords_UnknownCollection(t *testing.T) {
	e := newEnv(t, sealed(t), nil)
	resp := e.do(http.MethodGet, "/records/users/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecords_ListAndRedact(t *testing.T) {
	e := newEnv(t, sealed(t), withRecords(t))

	resp := e.do(http.MethodGet, "/records/blogs/?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[map[string]any](t, resp)
	assert.Equal(t, true, page["configured"])
	assert.EqualValues(t, 1, page["total_count"])
	assert.EqualValues(t, 10, page["limit"])
	items := page["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Hello", items[0].(map[string]any)["title"])

	resp = e.do(http.MethodGet, "/records/secrets/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	secret := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "DB_URL", secret["key"])
	assert.Equal(t, "[redacted]", secret["value"])

	resp = e.do(http.MethodGet, "/records/secrets/db_url", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[redacted]", decode[map[string]any](t, resp)["value"])

	resp = e.do(http.MethodGet, "/records/secrets/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecords_SecretRevealedThroughVault(t *testing.T) {
	e := newEnv(t, sealed(t), withRecords(t))
	require.Equal(t, http.StatusOK, e.unlock(passphrase).StatusCode)

	list := decode[api.ListSecretsResponse](t, e.do(http.MethodGet, "/vault/secrets", nil))
	require.Len(t, list.Secrets, 3)
	assert.Equal(t, vault.Entry{ID: "db_url", Source: vault.SourceRecord, Category: "general"}, list.Secrets[2])

	resp := e.do(http.MethodPost, "/vault/secrets/db_url/reveal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "postgres://admin:s3cret@db/site", decode[api.RevealResponse](t, resp).Value)
}

func TestRecords_DeleteRequiresUnlock(t *testing.T) {
	data := withRecords(t)
	e := newEnv(t, sealed(t), data)

	resp := e.do(http.MethodDelete, "/records/secrets/db_url", nil)
	require.Equal(t, http.StatusLocked, resp.StatusCode)

	require.Equal(t, http.StatusOK, e.unlock(passphrase).StatusCode)
	resp = e.do(http.MethodPost, "/vault/secrets/db_url/reveal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(http.MethodDelete, "/records/secrets/db_url", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, e.logBuf.String(), `"event":"record_deleted"`)

	_, err := data.Secrets.Get(t.Context(), "db_url")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	resp = e.do(http.MethodPost, "/vault/secrets/db_url/reveal", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "deleted records leave the session")

	resp = e.do(http.MethodDelete, "/records/secrets/db_url", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenAPIServed(t *testing.T) {
	e := newEnv(t, sealed(t), nil)
	resp := e.do(http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}
