// Package vault gates a sealed secret bundle behind a passphrase and holds
// the decrypted material for as long as a session stays unlocked.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/internal/util"
	"github.com/0xn1ku/nexusvault/payload"
)

// Gate turns a passphrase and a payload into an Outcome. It keeps no state
// between calls and is safe for concurrent use.
type Gate struct {
	now func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

func NewGate(opts ...GateOption) *Gate {
	g := &Gate{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var errBadBundle = errors.New("bundle is not a non-empty map of strings")

// Authenticate checks expiry, derives the key from passphrase and the
// payload salt, and opens the bundle. An expired payload is denied before
// any derivation. Every other failure is Denied{ReasonInvalidPassphrase}
// with the derived key destroyed. The error is non-nil only when ctx ends.
func (g *Gate) Authenticate(ctx context.Context, passphrase string, p payload.Payload) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Expired(g.now()) {
		return Denied{Reason: ReasonExpired}, nil
	}
	if err := crypto.ValidatePassphrase(passphrase); err != nil {
		return Denied{Reason: ReasonInvalidPassphrase}, nil
	}

	key, err := crypto.Derive(passphrase, p.Salt, p.KDF)
	if err != nil {
		return Denied{Reason: ReasonInvalidPassphrase}, nil
	}
	if err := ctx.Err(); err != nil {
		key.Destroy()
		return nil, err
	}

	plain, err := crypto.Decrypt(p.Ciphertext, key)
	if err != nil {
		key.Destroy()
		return Denied{Reason: ReasonInvalidPassphrase}, nil
	}
	defer util.WipeBytes(plain)

	secrets, err := parseBundle(plain)
	if err != nil {
		key.Destroy()
		return Denied{Reason: ReasonInvalidPassphrase}, nil
	}
	return Unlocked{Secrets: secrets, Key: key}, nil
}

func parseBundle(plain []byte) (map[string][]byte, error) {
	var m map[string]string
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, errBadBundle
	}
	if len(m) == 0 {
		return nil, errBadBundle
	}
	out := make(map[string][]byte, len(m))
	for name, v := range m {
		if name == "" {
			for _, b := range out {
				util.WipeBytes(b)
			}
			return nil, errBadBundle
		}
		out[name] = []byte(v)
	}
	return out, nil
}
