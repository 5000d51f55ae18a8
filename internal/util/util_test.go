package util

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestAES(t *testing.T) {
	key, err := RandomBytes(AESKeySize)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	plainText := []byte("hello world")

	t.Run("EncryptDecrypt", func(t *testing.T) {
		cipherText, err := EncryptAES(plainText, key)
		if err != nil {
			t.Fatalf("EncryptAES failed: %v", err)
		}

		decrypted, err := DecryptAES(cipherText, key)
		if err != nil {
			t.Fatalf("DecryptAES failed: %v", err)
		}

		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("FreshNonce", func(t *testing.T) {
		a, _ := EncryptAES(plainText, key)
		b, _ := EncryptAES(plainText, key)
		if bytes.Equal(a, b) {
			t.Error("two encryptions of the same plaintext should differ")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAES(plainText, key)
		cipherText[len(cipherText)-1] ^= 0xFF
		if _, err := DecryptAES(cipherText, key); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		cipherText, _ := EncryptAES(plainText, key)
		other, _ := RandomBytes(AESKeySize)
		if _, err := DecryptAES(cipherText, other); err == nil {
			t.Error("expected error with wrong key, got nil")
		}
	})

	t.Run("ShortCipherText", func(t *testing.T) {
		if _, err := DecryptAES([]byte("short"), key); err != ErrShortCiphertext {
			t.Errorf("expected ErrShortCiphertext, got %v", err)
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		if _, err := EncryptAES(plainText, []byte("too short")); err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})
}

func TestOpenSSL(t *testing.T) {
	plainText := []byte(`{"api_key":"abc123"}`)

	t.Run("RoundTrip", func(t *testing.T) {
		msg, err := EncryptOpenSSL(plainText, "passphrase")
		if err != nil {
			t.Fatalf("EncryptOpenSSL failed: %v", err)
		}
		if !IsOpenSSL(msg) {
			t.Fatal("message should carry the Salted__ header")
		}
		got, err := DecryptOpenSSL(msg, "passphrase")
		if err != nil {
			t.Fatalf("DecryptOpenSSL failed: %v", err)
		}
		if !bytes.Equal(got, plainText) {
			t.Errorf("expected %s, got %s", plainText, got)
		}
	})

	t.Run("WrongPassphrase", func(t *testing.T) {
		msg, _ := EncryptOpenSSL(plainText, "passphrase")
		for i := 0; i < 20; i++ {
			got, err := DecryptOpenSSL(msg, "wrong-"+string(rune('a'+i)))
			if err == nil && bytes.Equal(got, plainText) {
				t.Fatal("wrong passphrase must not recover the plaintext")
			}
		}
	})

	t.Run("KeyDerivationDeterministic", func(t *testing.T) {
		salt := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		key, iv := evpBytesToKey([]byte("secret"), salt, AESKeySize, 16)
		if len(key) != 32 || len(iv) != 16 {
			t.Fatalf("unexpected sizes key=%d iv=%d", len(key), len(iv))
		}
		again, ivAgain := evpBytesToKey([]byte("secret"), salt, AESKeySize, 16)
		if !bytes.Equal(key, again) || !bytes.Equal(iv, ivAgain) {
			t.Error("EVP_BytesToKey must be deterministic")
		}
	})

	t.Run("NotOpenSSL", func(t *testing.T) {
		if _, err := DecryptOpenSSL([]byte("plain bytes"), "x"); err != ErrNotOpenSSL {
			t.Errorf("expected ErrNotOpenSSL, got %v", err)
		}
	})

	t.Run("TruncatedBody", func(t *testing.T) {
		msg, _ := EncryptOpenSSL(plainText, "passphrase")
		if _, err := DecryptOpenSSL(msg[:len(msg)-3], "passphrase"); err == nil {
			t.Error("expected error for truncated body")
		}
	})
}

func TestDerivePBKDF2Key(t *testing.T) {
	salt := []byte("NIKESH_SECURITY_SALT_2024")

	a, err := DerivePBKDF2Key("correct-pass", salt, 1000, AESKeySize, HashSHA256)
	if err != nil {
		t.Fatalf("DerivePBKDF2Key failed: %v", err)
	}
	b, _ := DerivePBKDF2Key("correct-pass", salt, 1000, AESKeySize, HashSHA256)
	if !bytes.Equal(a, b) {
		t.Error("derivation must be deterministic")
	}

	c, _ := DerivePBKDF2Key("correct-pass", salt, 1000, AESKeySize, HashSHA1)
	if bytes.Equal(a, c) {
		t.Error("different hash functions should derive different keys")
	}

	d, _ := DerivePBKDF2Key("correct-pass", []byte("other-salt"), 1000, AESKeySize, HashSHA256)
	if bytes.Equal(a, d) {
		t.Error("different salts should derive different keys")
	}

	if _, err := DerivePBKDF2Key("x", salt, 0, AESKeySize, HashSHA256); err == nil {
		t.Error("expected error for zero iterations")
	}
	if _, err := DerivePBKDF2Key("x", salt, 1000, 16, HashSHA256); err == nil {
		t.Error("expected error for short key length")
	}
	if _, err := DerivePBKDF2Key("x", salt, 1000, AESKeySize, "md4"); err == nil {
		t.Error("expected error for unknown hash")
	}
}

func TestDerivePBKDF2Key_RFC6070(t *testing.T) {
	// RFC 6070 vector (c=4096) truncated to the first 20 bytes of a 32-byte key.
	key, err := DerivePBKDF2Key("password", []byte("salt"), 4096, AESKeySize, HashSHA1)
	if err != nil {
		t.Fatalf("DerivePBKDF2Key failed: %v", err)
	}
	want := "4b007901b765489abead49d926f721d065a429c1"
	if got := hex.EncodeToString(key[:20]); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestDeriveArgon2idKey(t *testing.T) {
	params := Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1}
	salt := []byte("0123456789abcdef")

	a, err := DeriveArgon2idKey("pass", salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}
	b, _ := DeriveArgon2idKey("pass", salt, params)
	if !bytes.Equal(a, b) || len(a) != AESKeySize {
		t.Error("argon2id derivation must be deterministic and 32 bytes")
	}
	if _, err := DeriveArgon2idKey("pass", salt, Argon2idParams{}); err == nil {
		t.Error("expected error for zero parameters")
	}
}

func TestNormalize(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	if Normalize(composed) != Normalize(decomposed) {
		t.Error("composed and decomposed forms should normalise equally")
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 0x01}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		got, err := DecodeBase64(enc.EncodeToString(raw))
		if err != nil {
			t.Fatalf("DecodeBase64 failed: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Errorf("expected %x, got %x", raw, got)
		}
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("expected zeroed slice, got %v", b)
	}
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should be nil")
	}
}
