// Package crypto derives vault keys from passphrases and applies the vault's
// symmetric ciphers. Key material lives in memguard buffers and is wiped by
// DerivedKey.Destroy.
package crypto

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/0xn1ku/nexusvault/internal/util"
)

// Argon2idParams configures Argon2id key derivation.
type Argon2idParams = util.Argon2idParams

// KDF algorithm names as they appear in payload headers.
const (
	AlgPBKDF2SHA256 = "pbkdf2-sha256"
	AlgPBKDF2SHA1   = "pbkdf2-sha1"
	AlgArgon2id     = "argon2id"
)

const (
	// KeyBits is the only supported key size (AES-256).
	KeyBits = 256
	// MinIterations is the floor accepted for PBKDF2 profiles.
	MinIterations = 1000
	// DefaultIterations is used for newly sealed payloads.
	DefaultIterations = 100_000
	// LegacyIterations matches payloads produced by the original site.
	LegacyIterations = 10_000
)

// ErrInvalidKDFParams is returned when a KDF profile cannot be used.
var ErrInvalidKDFParams = errors.New("invalid KDF parameters")

// KDFParams selects and tunes the key derivation function.
type KDFParams struct {
	Algorithm  string         `json:"alg"`
	Iterations int            `json:"iter,omitzero"`
	KeyBits    int            `json:"bits"`
	Argon2     Argon2idParams `json:"argon2,omitzero"`
}

// DefaultKDFParams returns PBKDF2-HMAC-SHA256 with 100k iterations.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm:  AlgPBKDF2SHA256,
		Iterations: DefaultIterations,
		KeyBits:    KeyBits,
	}
}

// LegacyKDFParams returns the PBKDF2-HMAC-SHA1 / 10k profile used by
// payloads sealed before the iteration count was raised.
func LegacyKDFParams() KDFParams {
	return KDFParams{
		Algorithm:  AlgPBKDF2SHA1,
		Iterations: LegacyIterations,
		KeyBits:    KeyBits,
	}
}

// Argon2idKDFParams returns a memory-hard profile.
func Argon2idKDFParams() KDFParams {
	return KDFParams{
		Algorithm: AlgArgon2id,
		KeyBits:   KeyBits,
		Argon2:    util.DefaultArgon2idParams(),
	}
}

// Validate checks that the profile is usable.
func (p KDFParams) Validate() error {
	if p.KeyBits != KeyBits {
		return fmt.Errorf("%w: key size %d bits, want %d", ErrInvalidKDFParams, p.KeyBits, KeyBits)
	}
	switch p.Algorithm {
	case AlgPBKDF2SHA256, AlgPBKDF2SHA1:
		if p.Iterations < MinIterations {
			return fmt.Errorf("%w: %d iterations is below the minimum of %d", ErrInvalidKDFParams, p.Iterations, MinIterations)
		}
	case AlgArgon2id:
		a := p.Argon2
		if a.Time == 0 || a.MemoryKiB == 0 || a.Parallelism == 0 {
			return fmt.Errorf("%w: argon2id parameters must be non-zero", ErrInvalidKDFParams)
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidKDFParams, p.Algorithm)
	}
	return nil
}

// DerivedKey is symmetric key material derived from a passphrase. It is never
// serialised and must be destroyed when the owning session locks.
type DerivedKey struct {
	buf *memguard.LockedBuffer
}

// NewDerivedKey moves raw into a guarded buffer. raw is wiped.
func NewDerivedKey(raw []byte) (*DerivedKey, error) {
	if len(raw) != util.AESKeySize {
		util.WipeBytes(raw)
		return nil, fmt.Errorf("%w: key length %d", ErrInvalidKDFParams, len(raw))
	}
	return &DerivedKey{buf: memguard.NewBufferFromBytes(raw)}, nil
}

// Alive reports whether the key still holds material.
func (k *DerivedKey) Alive() bool {
	return k != nil && k.buf != nil && k.buf.IsAlive()
}

// Destroy wipes the key. Safe to call more than once and on a nil key.
func (k *DerivedKey) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}

// Equal compares two keys in constant time. Destroyed keys are never equal.
func (k *DerivedKey) Equal(other *DerivedKey) bool {
	if !k.Alive() || !other.Alive() {
		return false
	}
	return subtle.ConstantTimeCompare(k.buf.Bytes(), other.buf.Bytes()) == 1
}

func (k *DerivedKey) bytes() ([]byte, error) {
	if !k.Alive() {
		return nil, ErrKeyDestroyed
	}
	return k.buf.Bytes(), nil
}

// Derive stretches passphrase with salt according to params. The work done is
// the same for every passphrase; nothing here knows whether the key is right.
func Derive(passphrase string, salt []byte, params KDFParams) (*DerivedKey, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt must not be empty", ErrInvalidKDFParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var (
		raw []byte
		err error
	)
	switch params.Algorithm {
	case AlgPBKDF2SHA256:
		raw, err = util.DerivePBKDF2Key(passphrase, salt, params.Iterations, params.KeyBits/8, util.HashSHA256)
	case AlgPBKDF2SHA1:
		raw, err = util.DerivePBKDF2Key(passphrase, salt, params.Iterations, params.KeyBits/8, util.HashSHA1)
	case AlgArgon2id:
		raw, err = util.DeriveArgon2idKey(passphrase, salt, params.Argon2)
	}
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return NewDerivedKey(raw)
}
