package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes (256 bits for HMAC-SHA256).
	DerivedKeyLength = 32

	purposeAccessJWT  = "gatherly-access-jwt-v1"
	purposeRefreshJWT = "gatherly-refresh-jwt-v1"
)

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a signing key from the master secret using HKDF-SHA256.
// Keys derived with different purpose strings are cryptographically
// independent, so compromise of one does not expose the other.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	// salt=nil is acceptable per RFC 5869; info=purpose provides domain separation.
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))

	derivedKey := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, err
	}
	return derivedKey, nil
}

// DeriveAccessJWTKey derives the key for signing access tokens.
func DeriveAccessJWTKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeAccessJWT)
}

// DeriveRefreshJWTKey derives the key for signing refresh tokens.
func DeriveRefreshJWTKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeRefreshJWT)
}
