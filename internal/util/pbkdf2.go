package util

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 hash names.
const (
	HashSHA256 = "sha256"
	HashSHA1   = "sha1"
)

func pbkdf2Hash(name string) (func() hash.Hash, error) {
	switch name {
	case HashSHA256, "":
		return sha256.New, nil
	case HashSHA1:
		return sha1.New, nil
	default:
		return nil, fmt.Errorf("unsupported pbkdf2 hash %q", name)
	}
}

// DerivePBKDF2Key stretches passphrase with PBKDF2-HMAC. The passphrase is
// NFKD-normalised first so visually identical input derives the same key.
func DerivePBKDF2Key(passphrase string, salt []byte, iterations, keyLen int, hashName string) ([]byte, error) {
	h, err := pbkdf2Hash(hashName)
	if err != nil {
		return nil, err
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("pbkdf2 iterations must be positive, got %d", iterations)
	}
	if keyLen != AESKeySize {
		return nil, fmt.Errorf("pbkdf2 key length must be %d bytes, got %d", AESKeySize, keyLen)
	}
	return pbkdf2.Key([]byte(Normalize(passphrase)), salt, iterations, keyLen, h), nil
}
