package vault

import (
	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/internal/util"
)

// Reason explains a denial.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInvalidPassphrase
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidPassphrase:
		return "invalid_passphrase"
	case ReasonExpired:
		return "expired"
	default:
		return "none"
	}
}

// Outcome is the result of an authentication attempt: Unlocked or Denied.
type Outcome interface {
	outcome()
}

// Unlocked carries the decrypted bundle and the key that opened it. The
// receiver owns both and must call Destroy when done.
type Unlocked struct {
	Secrets map[string][]byte
	Key     *crypto.DerivedKey
}

// Destroy wipes every secret value and the key.
func (u Unlocked) Destroy() {
	for name, v := range u.Secrets {
		util.WipeBytes(v)
		delete(u.Secrets, name)
	}
	u.Key.Destroy()
}

// Denied reports a failed attempt. It never says why decryption failed.
type Denied struct {
	Reason Reason
}

// Err maps the denial to ErrExpired or ErrAccessDenied.
func (d Denied) Err() error {
	if d.Reason == ReasonExpired {
		return ErrExpired
	}
	return ErrAccessDenied
}

func (Unlocked) outcome() {}
func (Denied) outcome()   {}
