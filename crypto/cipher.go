package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/0xn1ku/nexusvault/internal/util"
)

var (
	// ErrDecrypt covers every way a ciphertext can fail to open, including
	// legacy ciphertexts that "decrypt" to garbage under the wrong key.
	ErrDecrypt = errors.New("decryption failed")
	// ErrKeyDestroyed is returned when a wiped key is used.
	ErrKeyDestroyed = errors.New("derived key destroyed")
)

// Encrypt seals plaintext with AES-256-GCM under key.
func Encrypt(plaintext []byte, key *DerivedKey) ([]byte, error) {
	raw, err := key.bytes()
	if err != nil {
		return nil, err
	}
	return util.EncryptAES(plaintext, raw)
}

// EncryptLegacy produces the OpenSSL salted CBC format, keyed by the hex form
// of key. Older records and payloads were written this way.
func EncryptLegacy(plaintext []byte, key *DerivedKey) ([]byte, error) {
	raw, err := key.bytes()
	if err != nil {
		return nil, err
	}
	return util.EncryptOpenSSL(plaintext, util.HexEncode(raw))
}

// Decrypt opens ciphertext with key. Messages with the OpenSSL "Salted__"
// header use the legacy CBC scheme; anything else is AES-256-GCM.
func Decrypt(ciphertext []byte, key *DerivedKey) ([]byte, error) {
	raw, err := key.bytes()
	if err != nil {
		return nil, err
	}

	var plain []byte
	if util.IsOpenSSL(ciphertext) {
		plain, err = util.DecryptOpenSSL(ciphertext, util.HexEncode(raw))
	} else {
		plain, err = util.DecryptAES(ciphertext, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plain, nil
}

// EncryptString encrypts a text value and returns it base64-encoded, the form
// secret records store in their value column.
func EncryptString(plaintext string, key *DerivedKey) (string, error) {
	sealed, err := Encrypt([]byte(plaintext), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptValue decodes a base64 record value and opens it with key. The
// plaintext must be valid UTF-8. Callers own the returned slice and should
// wipe it when done.
func DecryptValue(value string, key *DerivedKey) ([]byte, error) {
	sealed, err := util.DecodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: value is not base64", ErrDecrypt)
	}
	plain, err := Decrypt(sealed, key)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(plain) {
		util.WipeBytes(plain)
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, util.ErrInvalidUTF8)
	}
	return plain, nil
}

// DecryptString reverses EncryptString. It also accepts CryptoJS output,
// which is base64 of the OpenSSL salted format.
func DecryptString(value string, key *DerivedKey) (string, error) {
	plain, err := DecryptValue(value, key)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(plain)
	return string(plain), nil
}
