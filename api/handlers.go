package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/vault"
)

// redactedValue replaces secret record values in record listings. Values
// are only served through the vault reveal endpoint.
const redactedValue = "[redacted]"

func (a *API) status() VaultStatusResponse {
	p := a.session.Payload()
	resp := VaultStatusResponse{
		Phase:       a.session.Phase().String(),
		IssuedAt:    p.IssuedAt,
		ExpiresAt:   p.ExpiresAt,
		Expired:     p.Expired(time.Now()),
		SecretCount: len(a.session.SecretNames()),
		RevealedIDs: a.session.RevealedIDs(),
	}
	if reason := a.session.Reason(); reason != vault.ReasonNone {
		resp.Reason = reason.String()
	}
	if resp.RevealedIDs == nil {
		resp.RevealedIDs = []string{}
	}
	return resp
}

// VaultStatus handles GET /vault.
func (a *API) VaultStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

// Unlock handles POST /vault/unlock.
func (a *API) Unlock(w http.ResponseWriter, r *http.Request) {
	clientIP := a.extractClientIP(r)
	if ok, retryAfter := a.limiter.allow(clientIP); !ok {
		a.audit.log(AuditUnlockRateLimited, r)
		writeRateLimited(w, retryAfter)
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := a.session.Unlock(r.Context(), req.Passphrase)
	switch {
	case err == nil:
		a.limiter.recordSuccess(clientIP)
		a.audit.log(AuditVaultUnlocked, r, slog.Int("secrets", len(a.session.SecretNames())))
		a.refreshRecords(r.Context())
		writeJSON(w, http.StatusOK, a.status())
	case errors.Is(err, vault.ErrAccessDenied):
		a.limiter.recordFailure(clientIP)
		a.audit.logDenied(r, vault.ReasonInvalidPassphrase.String())
		mapError(w, err)
	case errors.Is(err, vault.ErrExpired):
		a.audit.logDenied(r, vault.ReasonExpired.String())
		mapError(w, err)
	default:
		mapError(w, err)
	}
}

// Lock handles POST /vault/lock. Locking an already locked vault succeeds.
func (a *API) Lock(w http.ResponseWriter, r *http.Request) {
	a.session.Lock()
	a.audit.log(AuditVaultLocked, r)
	writeJSON(w, http.StatusOK, a.status())
}

// ListSecrets handles GET /vault/secrets.
func (a *API) ListSecrets(w http.ResponseWriter, r *http.Request) {
	if a.session.Phase() == vault.PhaseUnlocked {
		a.refreshRecords(r.Context())
	}
	entries, err := a.session.Secrets()
	if err != nil {
		mapError(w, err)
		return
	}
	if entries == nil {
		entries = []vault.Entry{}
	}
	writeJSON(w, http.StatusOK, ListSecretsResponse{Secrets: entries})
}

// RevealSecret handles POST /vault/secrets/{id}/reveal.
func (a *API) RevealSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	value, err := a.session.Reveal(id)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logSecret(AuditSecretRevealed, r, id)
	writeJSON(w, http.StatusOK, RevealResponse{ID: id, Value: value})
}

// HideSecret handles DELETE /vault/secrets/{id}/reveal.
func (a *API) HideSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.session.Hide(id)
	a.audit.logSecret(AuditSecretHidden, r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) resource(w http.ResponseWriter, r *http.Request) (storage.Resource, bool) {
	name := chi.URLParam(r, "collection")
	res, ok := a.data.Resource(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return nil, false
	}
	return res, true
}

// ListRecords handles GET /records/{collection}. An unconfigured store
// yields an empty page with configured=false.
func (a *API) ListRecords(w http.ResponseWriter, r *http.Request) {
	res, ok := a.resource(w, r)
	if !ok {
		return
	}
	limit, offset := parsePagination(r)
	items, total, err := res.ListRange(r.Context(), offset, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListRecordsResponse{
		Collection:     res.Name(),
		Configured:     a.data.Configured(),
		Items:          redact(items),
		PaginationMeta: newPaginationMeta(total, limit, offset),
	})
}

// GetRecord handles GET /records/{collection}/{id}.
func (a *API) GetRecord(w http.ResponseWriter, r *http.Request) {
	res, ok := a.resource(w, r)
	if !ok {
		return
	}
	item, err := res.GetAny(r.Context(), storage.ID(chi.URLParam(r, "id")))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redact(item))
}

// DeleteRecord handles DELETE /records/{collection}/{id}. Deleted secret
// records are dropped from the session as well.
func (a *API) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	res, ok := a.resource(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := res.Delete(r.Context(), storage.ID(id)); err != nil {
		mapError(w, err)
		return
	}
	if res.Name() == storage.CollectionSecrets {
		a.session.Untrack(id)
	}
	a.audit.log(AuditRecordDeleted, r,
		slog.String("collection", res.Name()),
		slog.String("record_id", id),
	)
	w.WriteHeader(http.StatusNoContent)
}

func redact(v any) any {
	switch v := v.(type) {
	case storage.Secret:
		v.Value = redactedValue
		return v
	case []storage.Secret:
		out := make([]storage.Secret, len(v))
		for i, s := range v {
			s.Value = redactedValue
			out[i] = s
		}
		return out
	}
	return v
}
