package crypto

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP 2023, with memory raised to 64 MiB).
const (
	Argon2idTime        uint32 = 3
	Argon2idMemory      uint32 = 64 * 1024
	Argon2idParallelism uint8  = 4
	Argon2idKeyLength   uint32 = KeySize

	// MinPasswordLength is the minimum acceptable passphrase length
	MinPasswordLength = 12
)

var (
	ErrPasswordTooShort = errors.New("passphrase must be at least 12 characters")
	ErrInvalidSalt      = errors.New("invalid salt")
)

// DeriveKey derives a 256-bit key from a passphrase and per-user salt using Argon2id.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if len(salt) < 16 {
		return nil, ErrInvalidSalt
	}

	return argon2.IDKey(
		[]byte(password),
		salt,
		Argon2idTime,
		Argon2idMemory,
		Argon2idParallelism,
		Argon2idKeyLength,
	), nil
}
