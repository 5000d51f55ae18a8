package payload

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xn1ku/nexusvault/crypto"
)

func openPayload(t *testing.T, p Payload, passphrase string) map[string]string {
	t.Helper()
	key, err := crypto.Derive(passphrase, p.Salt, p.KDF)
	require.NoError(t, err)
	defer key.Destroy()

	plain, err := crypto.Decrypt(p.Ciphertext, key)
	require.NoError(t, err)
	var secrets map[string]string
	require.NoError(t, json.Unmarshal(plain, &secrets))
	return secrets
}

func TestSeal(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 500, time.UTC)
	secrets := map[string]string{"api_key": "abc123"}

	p, err := Seal(secrets, "correct-pass", 24*time.Hour, WithKDF(testKDF), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Len(t, p.Salt, SaltSize)
	assert.Equal(t, now.Truncate(time.Second), p.IssuedAt)
	assert.Equal(t, 24*time.Hour, p.TTL())
	assert.Equal(t, testKDF, p.KDF)
	assert.Equal(t, secrets, openPayload(t, p, "correct-pass"))

	encoded, err := Encode(p)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestSeal_Legacy(t *testing.T) {
	p, err := Seal(map[string]string{"github_token": "ghp_x"}, "pw", time.Hour,
		WithKDF(crypto.KDFParams{Algorithm: crypto.AlgPBKDF2SHA1, Iterations: crypto.MinIterations, KeyBits: crypto.KeyBits}),
		WithLegacyCipher())
	require.NoError(t, err)
	assert.Equal(t, "Salted__", string(p.Ciphertext[:8]))
	assert.Equal(t, "ghp_x", openPayload(t, p, "pw")["github_token"])
}

func TestSeal_FreshSalt(t *testing.T) {
	a, err := Seal(map[string]string{"k": "v"}, "pw", time.Hour, WithKDF(testKDF))
	require.NoError(t, err)
	b, err := Seal(map[string]string{"k": "v"}, "pw", time.Hour, WithKDF(testKDF))
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
}

func TestSeal_Rejects(t *testing.T) {
	_, err := Seal(nil, "pw", time.Hour, WithKDF(testKDF))
	assert.ErrorIs(t, err, ErrEmptyBundle)

	_, err = Seal(map[string]string{"k": "v"}, "", time.Hour, WithKDF(testKDF))
	assert.ErrorIs(t, err, crypto.ErrInvalidPassphrase)

	_, err = Seal(map[string]string{"k": "v"}, strings.Repeat("p", crypto.MaxPassphraseLength+1), time.Hour, WithKDF(testKDF))
	assert.ErrorIs(t, err, crypto.ErrInvalidPassphrase)

	_, err = Seal(map[string]string{"k": "v"}, "pw", 0, WithKDF(testKDF))
	assert.Error(t, err)

	_, err = Seal(map[string]string{"k": "v"}, "pw", time.Hour, WithKDF(crypto.KDFParams{Algorithm: "none"}))
	assert.ErrorIs(t, err, crypto.ErrInvalidKDFParams)
}
