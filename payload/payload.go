// Package payload encodes and decodes the sealed secret bundle handed to the
// vault: ciphertext, salt, issue/expiry times and the KDF profile needed to
// re-derive the key.
package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/internal/util"
)

// Version is the wire document version written by Encode.
const Version = 1

var (
	// ErrMalformedPayload is returned when a payload is missing a section,
	// cannot be parsed or carries inconsistent times.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidToken is returned when a token payload fails signature checks.
	ErrInvalidToken = errors.New("invalid payload token")
)

// Payload is the decoded bundle. Times are UTC with second resolution.
type Payload struct {
	Ciphertext []byte
	Salt       []byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	KDF        crypto.KDFParams
}

// Expired reports whether now is past the expiry time.
func (p Payload) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// TTL returns the lifetime the payload was issued with.
func (p Payload) TTL() time.Duration {
	return p.ExpiresAt.Sub(p.IssuedAt)
}

func (p Payload) validate() error {
	if len(p.Ciphertext) == 0 {
		return fmt.Errorf("%w: missing encrypted secrets", ErrMalformedPayload)
	}
	if len(p.Salt) == 0 {
		return fmt.Errorf("%w: missing salt", ErrMalformedPayload)
	}
	if !p.ExpiresAt.After(p.IssuedAt) {
		return fmt.Errorf("%w: expiry %d is not after issue time %d", ErrMalformedPayload, p.ExpiresAt.Unix(), p.IssuedAt.Unix())
	}
	if err := p.KDF.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

// document is the JSON wire form. Documents without "v" come from the first
// generation of the site: they imply the legacy KDF profile and carry the
// salt as plain text, whose UTF-8 bytes feed the KDF. Version 1 documents
// carry a base64 salt.
type document struct {
	Version          int               `json:"v,omitempty"`
	EncryptedSecrets string            `json:"encryptedSecrets"`
	Salt             string            `json:"salt"`
	IssuedAt         *int64            `json:"iat"`
	ExpiresAt        *int64            `json:"exp"`
	KDF              *crypto.KDFParams `json:"kdf,omitempty"`
}

// Encode renders p as base64url (unpadded) JSON.
func Encode(p Payload) (string, error) {
	p = normalise(p)
	if err := p.validate(); err != nil {
		return "", err
	}
	iat, exp := p.IssuedAt.Unix(), p.ExpiresAt.Unix()
	kdf := p.KDF
	doc := document{
		Version:          Version,
		EncryptedSecrets: base64.StdEncoding.EncodeToString(p.Ciphertext),
		Salt:             base64.StdEncoding.EncodeToString(p.Salt),
		IssuedAt:         &iat,
		ExpiresAt:        &exp,
		KDF:              &kdf,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses either the base64url form produced by Encode or the bare
// JSON document.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, fmt.Errorf("%w: empty input", ErrMalformedPayload)
	}

	var body []byte
	if strings.HasPrefix(raw, "{") {
		body = []byte(raw)
	} else {
		var err error
		body, err = util.DecodeBase64(raw)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: not base64: %v", ErrMalformedPayload, err)
		}
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return fromDocument(doc)
}

func fromDocument(doc document) (Payload, error) {
	var kdf crypto.KDFParams
	switch doc.Version {
	case 0:
		kdf = crypto.LegacyKDFParams()
	case Version:
		kdf = crypto.DefaultKDFParams()
	default:
		return Payload{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPayload, doc.Version)
	}
	if doc.KDF != nil {
		kdf = *doc.KDF
	}
	if doc.IssuedAt == nil || doc.ExpiresAt == nil {
		return Payload{}, fmt.Errorf("%w: missing iat or exp", ErrMalformedPayload)
	}

	ct, err := decodeSection("encryptedSecrets", doc.EncryptedSecrets)
	if err != nil {
		return Payload{}, err
	}
	salt, err := decodeSalt(doc.Version, doc.Salt)
	if err != nil {
		return Payload{}, err
	}

	p := Payload{
		Ciphertext: ct,
		Salt:       salt,
		IssuedAt:   time.Unix(*doc.IssuedAt, 0).UTC(),
		ExpiresAt:  time.Unix(*doc.ExpiresAt, 0).UTC(),
		KDF:        kdf,
	}
	if err := p.validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func decodeSection(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedPayload, name)
	}
	b, err := util.DecodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64", ErrMalformedPayload, name)
	}
	return b, nil
}

func decodeSalt(version int, value string) ([]byte, error) {
	if version == 0 {
		if value == "" {
			return nil, fmt.Errorf("%w: missing salt", ErrMalformedPayload)
		}
		return []byte(value), nil
	}
	return decodeSection("salt", value)
}

func normalise(p Payload) Payload {
	p.IssuedAt = p.IssuedAt.UTC().Truncate(time.Second)
	p.ExpiresAt = p.ExpiresAt.UTC().Truncate(time.Second)
	return p
}
