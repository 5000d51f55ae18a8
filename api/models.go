package api

import (
	"time"

	"github.com/0xn1ku/nexusvault/vault"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UnlockRequest is the JSON body for POST /vault/unlock.
type UnlockRequest struct {
	Passphrase string `json:"passphrase"`
}

// VaultStatusResponse describes the session without revealing secrets.
type VaultStatusResponse struct {
	Phase       string    `json:"phase"`
	Reason      string    `json:"reason,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Expired     bool      `json:"expired"`
	SecretCount int       `json:"secret_count"`
	RevealedIDs []string  `json:"revealed_ids"`
}

// ListSecretsResponse is returned from GET /vault/secrets.
type ListSecretsResponse struct {
	Secrets []vault.Entry `json:"secrets"`
}

// RevealResponse is returned from POST /vault/secrets/{id}/reveal.
type RevealResponse struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// ListRecordsResponse is returned from GET /records/{collection}.
type ListRecordsResponse struct {
	Collection string `json:"collection"`
	Configured bool   `json:"configured"`
	Items      any    `json:"items"`
	PaginationMeta
}
