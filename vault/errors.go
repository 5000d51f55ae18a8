package vault

import (
	"errors"

	"github.com/0xn1ku/nexusvault/crypto"
)

var (
	// ErrAccessDenied is the only error a wrong passphrase or a damaged
	// payload produces.
	ErrAccessDenied = errors.New("access denied")
	// ErrExpired indicates the payload's validity window has closed.
	ErrExpired = errors.New("vault payload expired")
	// ErrLocked indicates the session holds no key.
	ErrLocked = errors.New("vault locked")
	// ErrSuperseded is returned to an unlock attempt overtaken by a newer
	// Unlock or Lock call. Its result has been discarded.
	ErrSuperseded = errors.New("unlock superseded")
	// ErrUnknownSecret indicates no bundle entry or tracked record has the ID.
	ErrUnknownSecret = errors.New("unknown secret")
	// ErrDecrypt is returned by Reveal when a record does not open under the
	// session key.
	ErrDecrypt = crypto.ErrDecrypt
)
