package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"errors"
	"fmt"
	"unicode/utf8"
)

// OpenSSLMagic prefixes messages in the OpenSSL "enc" salted format. CryptoJS
// emits the same layout when AES.encrypt is given a passphrase string.
var OpenSSLMagic = []byte("Salted__")

const openSSLSaltSize = 8

var (
	ErrNotOpenSSL  = errors.New("message is not in OpenSSL salted format")
	ErrBadPadding  = errors.New("invalid PKCS#7 padding")
	ErrInvalidUTF8 = errors.New("plaintext is not valid UTF-8")
)

// IsOpenSSL reports whether msg carries the OpenSSL salted header.
func IsOpenSSL(msg []byte) bool {
	return len(msg) >= len(OpenSSLMagic)+openSSLSaltSize && bytes.HasPrefix(msg, OpenSSLMagic)
}

// evpBytesToKey is OpenSSL's EVP_BytesToKey with MD5 and a single round.
func evpBytesToKey(passphrase, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var (
		out  []byte
		prev []byte
	)
	for len(out) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen : keyLen+ivLen]
}

// EncryptOpenSSL encrypts plainText with AES-256-CBC in the OpenSSL salted
// format. It exists to produce fixtures compatible with legacy records.
func EncryptOpenSSL(plainText []byte, passphrase string) ([]byte, error) {
	salt, err := RandomBytes(openSSLSaltSize)
	if err != nil {
		return nil, err
	}
	key, iv := evpBytesToKey([]byte(passphrase), salt, AESKeySize, aes.BlockSize)
	defer WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	pad := aes.BlockSize - len(plainText)%aes.BlockSize
	padded := make([]byte, len(plainText)+pad)
	copy(padded, plainText)
	for i := len(plainText); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, 0, len(OpenSSLMagic)+openSSLSaltSize+len(padded))
	out = append(out, OpenSSLMagic...)
	out = append(out, salt...)
	sealed := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(sealed, padded)
	return append(out, sealed...), nil
}

// DecryptOpenSSL reverses EncryptOpenSSL. CBC carries no MAC, so a wrong
// passphrase shows up as bad padding or as non-UTF-8 output; both are errors.
func DecryptOpenSSL(msg []byte, passphrase string) ([]byte, error) {
	if !IsOpenSSL(msg) {
		return nil, ErrNotOpenSSL
	}
	salt := msg[len(OpenSSLMagic) : len(OpenSSLMagic)+openSSLSaltSize]
	body := msg[len(OpenSSLMagic)+openSSLSaltSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(body))
	}

	key, iv := evpBytesToKey([]byte(passphrase), salt, AESKeySize, aes.BlockSize)
	defer WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plain) {
		WipeBytes(plain)
		return nil, ErrBadPadding
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			WipeBytes(plain)
			return nil, ErrBadPadding
		}
	}
	plain = plain[:len(plain)-pad]
	if !utf8.Valid(plain) {
		WipeBytes(plain)
		return nil, ErrInvalidUTF8
	}
	return plain, nil
}
