package vault

import (
	"log/slog"

	"github.com/0xn1ku/nexusvault/storage"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger for lifecycle events. Secrets, passphrases
// and keys are never logged.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// WithRecords tracks data-layer secret records from the start.
func WithRecords(records ...storage.Secret) SessionOption {
	return func(s *Session) {
		s.trackLocked(records)
	}
}
