// Package crypto seals custodial wallet secrets at rest.
// AES-256-GCM with a per-user argon2id key and the owner's id bound as AAD.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"runtime"
	"unsafe"
)

const (
	// KeySize is the AES-256 key length
	KeySize = 32

	// SaltSize is the per-user salt length
	SaltSize = 32
)

// Generic messages so callers cannot build an oracle out of them.
var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrInvalidData      = errors.New("invalid data")
)

// EncryptWithAAD encrypts plaintext and authenticates aad alongside it.
// Output is base64(nonce || ciphertext || tag).
func EncryptWithAAD(plaintext []byte, key []byte, aad []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKeySize
	}
	if plaintext == nil {
		return "", ErrInvalidData
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, aad)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptWithAAD reverses EncryptWithAAD. The same aad must be supplied.
func DecryptWithAAD(ciphertextB64 string, key []byte, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if ciphertextB64 == "" {
		return nil, ErrInvalidData
	}

	data, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrDecryptionFailed
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// SecureZero overwrites b with zeros.
// The GC may already hold copies, so this only narrows the exposure window.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}

	ptr := unsafe.Pointer(&b[0])
	for i := range b {
		*(*byte)(unsafe.Pointer(uintptr(ptr) + uintptr(i))) = 0
	}

	runtime.KeepAlive(b)
}
