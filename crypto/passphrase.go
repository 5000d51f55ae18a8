package crypto

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxPassphraseLength bounds the input handed to the KDF.
const MaxPassphraseLength = 1024

// ErrInvalidPassphrase is returned for passphrases no payload may be sealed
// or opened with.
var ErrInvalidPassphrase = errors.New("invalid passphrase")

// ValidatePassphrase checks the rules shared by sealing and unlocking.
func ValidatePassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidPassphrase)
	}
	if len(passphrase) > MaxPassphraseLength {
		return fmt.Errorf("%w: exceeds maximum length of %d", ErrInvalidPassphrase, MaxPassphraseLength)
	}
	if !utf8.ValidString(passphrase) {
		return fmt.Errorf("%w: contains invalid UTF-8", ErrInvalidPassphrase)
	}
	return nil
}
