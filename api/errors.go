package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/vault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError writes the response for err. Messages for vault failures are
// fixed strings so responses never explain why decryption failed.
func mapError(w http.ResponseWriter, err error) {
	var remote *storage.RemoteError
	switch {
	case errors.Is(err, vault.ErrAccessDenied):
		writeError(w, http.StatusUnauthorized, vault.ErrAccessDenied.Error())
	case errors.Is(err, vault.ErrExpired):
		writeError(w, http.StatusForbidden, vault.ErrExpired.Error())
	case errors.Is(err, vault.ErrLocked):
		writeError(w, http.StatusLocked, vault.ErrLocked.Error())
	case errors.Is(err, vault.ErrSuperseded):
		writeError(w, http.StatusConflict, vault.ErrSuperseded.Error())
	case errors.Is(err, vault.ErrUnknownSecret):
		writeError(w, http.StatusNotFound, vault.ErrUnknownSecret.Error())
	case errors.Is(err, vault.ErrDecrypt):
		writeError(w, http.StatusUnprocessableEntity, "secret could not be decrypted")
	case errors.Is(err, storage.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, storage.ErrConflict.Error())
	case errors.Is(err, storage.ErrStale):
		writeError(w, http.StatusConflict, storage.ErrStale.Error())
	case errors.Is(err, storage.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, storage.ErrNotConfigured.Error())
	case errors.As(err, &remote):
		writeError(w, http.StatusBadGateway, "remote store error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
