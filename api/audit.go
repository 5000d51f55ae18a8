package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditVaultUnlocked     AuditEvent = "vault_unlocked"
	AuditVaultDenied       AuditEvent = "vault_denied"
	AuditVaultLocked       AuditEvent = "vault_locked"
	AuditSecretRevealed    AuditEvent = "secret_revealed"
	AuditSecretHidden      AuditEvent = "secret_hidden"
	AuditUnlockRateLimited AuditEvent = "unlock_rate_limited"
	AuditRecordDeleted     AuditEvent = "record_deleted"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Passphrases and secret values are never passed to it.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	webhook *auditWebhook
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	now := time.Now().UTC().Format(time.RFC3339)
	clientIP := extractClientIP(r)
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("client_ip", clientIP),
		slog.String("timestamp", now),
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", append(base, attrs...)...)

	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
	if al.webhook != nil {
		extra := make(map[string]string, len(attrs))
		for _, a := range attrs {
			extra[a.Key] = a.Value.String()
		}
		al.webhook.enqueue(webhookEvent{
			Event:     string(event),
			ClientIP:  clientIP,
			Timestamp: now,
			Attrs:     extra,
		})
	}
}

// logDenied records a failed unlock with its reason.
func (al *auditLogger) logDenied(r *http.Request, reason string) {
	al.log(AuditVaultDenied, r, slog.String("reason", reason))
}

// logSecret records an action on one secret ID.
func (al *auditLogger) logSecret(event AuditEvent, r *http.Request, id string) {
	al.log(event, r, slog.String("secret_id", id))
}
