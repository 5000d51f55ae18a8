package payload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/0xn1ku/nexusvault/crypto"
)

// tokenClaims carries the payload sections inside an HS256 JWT.
type tokenClaims struct {
	jwt.RegisteredClaims
	Enc  string            `json:"enc"`
	Salt string            `json:"salt"`
	KDF  *crypto.KDFParams `json:"kdf,omitempty"`
}

// EncodeToken signs p as an HS256 JWT with signingKey.
func EncodeToken(p Payload, signingKey []byte) (string, error) {
	if len(signingKey) == 0 {
		return "", fmt.Errorf("%w: empty signing key", ErrInvalidToken)
	}
	p = normalise(p)
	if err := p.validate(); err != nil {
		return "", err
	}

	kdf := p.KDF
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
		Enc:  base64.StdEncoding.EncodeToString(p.Ciphertext),
		Salt: base64.StdEncoding.EncodeToString(p.Salt),
		KDF:  &kdf,
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("signing payload token: %w", err)
	}
	return signed, nil
}

// DecodeToken verifies the token signature and returns the payload inside.
// Time claims are not validated here; expiry is enforced at unlock time so
// that an expired bundle is reported as expired rather than as a bad token.
func DecodeToken(tok string, signingKey []byte) (Payload, error) {
	if len(signingKey) == 0 {
		return Payload{}, fmt.Errorf("%w: empty signing key", ErrInvalidToken)
	}

	claims := &tokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(strings.TrimSpace(tok), claims, func(*jwt.Token) (any, error) {
		return signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Payload{}, ErrInvalidToken
	}

	doc := document{
		Version:          Version,
		EncryptedSecrets: claims.Enc,
		Salt:             claims.Salt,
		IssuedAt:         unixPtr(claims.IssuedAt),
		ExpiresAt:        unixPtr(claims.ExpiresAt),
		KDF:              claims.KDF,
	}
	return fromDocument(doc)
}

// IsToken reports whether raw looks like a compact JWS.
func IsToken(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.Count(raw, ".") == 2 && strings.HasPrefix(raw, "eyJ")
}

// Parse decodes raw as a token when it looks like one and a signing key is
// available, and as a plain payload otherwise.
func Parse(raw string, signingKey []byte) (Payload, error) {
	if IsToken(raw) {
		if len(signingKey) == 0 {
			return Payload{}, fmt.Errorf("%w: token payload requires a signing key", ErrInvalidToken)
		}
		return DecodeToken(raw, signingKey)
	}
	return Decode(raw)
}

func unixPtr(d *jwt.NumericDate) *int64 {
	if d == nil {
		return nil
	}
	v := d.Time.Truncate(time.Second).Unix()
	return &v
}
