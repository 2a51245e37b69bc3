package crypto

import "fmt"

// Vault seals per-user secrets under a key derived from one operator passphrase.
// Each user gets their own salt, and the ciphertext is bound to their id.
type Vault struct {
	passphrase string
}

// NewVault returns a Vault, or ErrPasswordTooShort.
func NewVault(passphrase string) (*Vault, error) {
	if len(passphrase) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	return &Vault{passphrase: passphrase}, nil
}

// Seal encrypts plaintext for ownerID with a fresh salt.
func (v *Vault) Seal(ownerID int64, plaintext []byte) (salt []byte, sealed string, err error) {
	salt, err = GenerateSalt()
	if err != nil {
		return nil, "", err
	}

	key, err := DeriveKey(v.passphrase, salt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive key: %w", err)
	}
	defer SecureZero(key)

	sealed, err = EncryptWithAAD(plaintext, key, ownerAAD(ownerID))
	if err != nil {
		return nil, "", err
	}
	return salt, sealed, nil
}

// Open decrypts a value produced by Seal for the same ownerID.
// Callers should SecureZero the result when done.
func (v *Vault) Open(ownerID int64, salt []byte, sealed string) ([]byte, error) {
	key, err := DeriveKey(v.passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer SecureZero(key)

	return DecryptWithAAD(sealed, key, ownerAAD(ownerID))
}

func ownerAAD(ownerID int64) []byte {
	return []byte(fmt.Sprintf("telegram:%d", ownerID))
}
