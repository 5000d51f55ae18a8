package api

import (
	"net/http"
	"strings"

	"github.com/0xn1ku/nexusvault/vault"
)

// defaultMaxBodyBytes caps request bodies; an unlock request is one short
// JSON object.
const defaultMaxBodyBytes = 16 << 10

// limitBody rejects bodies larger than the configured cap.
func (a *API) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// requireUnlocked lets the request through only while the vault session is
// unlocked. Record mutations use it as their authorisation gate.
func (a *API) requireUnlocked(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.session.Phase() != vault.PhaseUnlocked {
			mapError(w, vault.ErrLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
