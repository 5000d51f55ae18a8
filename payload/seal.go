package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/internal/util"
)

// SaltSize is the salt length used for newly sealed payloads.
const SaltSize = 16

// ErrEmptyBundle is returned when sealing a bundle with no secrets.
var ErrEmptyBundle = errors.New("secret bundle is empty")

// SealOption configures Seal.
type SealOption func(*sealOptions)

type sealOptions struct {
	kdf    crypto.KDFParams
	now    func() time.Time
	legacy bool
}

// WithKDF overrides the default KDF profile.
func WithKDF(params crypto.KDFParams) SealOption {
	return func(o *sealOptions) {
		o.kdf = params
	}
}

// WithClock sets the clock used for the issue time.
func WithClock(now func() time.Time) SealOption {
	return func(o *sealOptions) {
		o.now = now
	}
}

// WithLegacyCipher writes the ciphertext in the OpenSSL salted CBC format
// instead of GCM.
func WithLegacyCipher() SealOption {
	return func(o *sealOptions) {
		o.legacy = true
	}
}

// Seal encrypts secrets under a key derived from passphrase and returns a
// payload valid for ttl.
func Seal(secrets map[string]string, passphrase string, ttl time.Duration, opts ...SealOption) (Payload, error) {
	o := sealOptions{
		kdf: crypto.DefaultKDFParams(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(secrets) == 0 {
		return Payload{}, ErrEmptyBundle
	}
	if err := crypto.ValidatePassphrase(passphrase); err != nil {
		return Payload{}, err
	}
	if ttl < time.Second {
		return Payload{}, fmt.Errorf("ttl %s is shorter than one second", ttl)
	}

	salt, err := util.RandomBytes(SaltSize)
	if err != nil {
		return Payload{}, fmt.Errorf("generating salt: %w", err)
	}
	key, err := crypto.Derive(passphrase, salt, o.kdf)
	if err != nil {
		return Payload{}, err
	}
	defer key.Destroy()

	plain, err := json.Marshal(secrets)
	if err != nil {
		return Payload{}, fmt.Errorf("marshaling secrets: %w", err)
	}
	defer util.WipeBytes(plain)

	var ct []byte
	if o.legacy {
		ct, err = crypto.EncryptLegacy(plain, key)
	} else {
		ct, err = crypto.Encrypt(plain, key)
	}
	if err != nil {
		return Payload{}, fmt.Errorf("encrypting secrets: %w", err)
	}

	iat := o.now().UTC().Truncate(time.Second)
	return Payload{
		Ciphertext: ct,
		Salt:       salt,
		IssuedAt:   iat,
		ExpiresAt:  iat.Add(ttl).Truncate(time.Second),
		KDF:        o.kdf,
	}, nil
}
