package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"unibox/internal/constants"
	"unibox/internal/models"
)

const (
	envEncryptionEnabled = "UNIBOX_ENABLE_ENCRYPTION"
	envEncryptionSecret  = "UNIBOX_ENCRYPTION_SECRET"
)

// encryptor seals participant identifiers, external ids and message content
// before they hit disk. Values are stored as base64(nonce || ciphertext).
// With encryption disabled the zero encryptor passes everything through.
type encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor() (*encryptor, error) {
	if !isEncryptionEnabled() {
		return &encryptor{}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &encryptor{gcm: gcm}, nil
}

// seal produces base64(nonce || ciphertext) for storage.
func (e *encryptor) seal(nonce []byte, plaintext string) string {
	out := e.gcm.Seal(append([]byte(nil), nonce...), nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out)
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.seal(nonce, plaintext), nil
}

// EncryptForLookup produces deterministic ciphertext so that equality lookups
// and unique indexes keep working on encrypted columns. The nonce comes from
// a salted hash of the plaintext, so the same input always maps to the same
// stored value.
func (e *encryptor) EncryptForLookup(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	digest := sha256.Sum256([]byte(plaintext + constants.EncryptionLookupSalt))
	// #nosec G407 - searchable encryption needs a deterministic nonce
	return e.seal(digest[:models.NonceSize], plaintext), nil
}

func (e *encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || e.gcm == nil {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:models.NonceSize], data[models.NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// The IfEnabled variants consult the flag on every call.

func (e *encryptor) EncryptIfEnabled(plaintext string) (string, error) {
	if !isEncryptionEnabled() {
		return plaintext, nil
	}
	return e.Encrypt(plaintext)
}

// EncryptForLookupIfEnabled encrypts with the deterministic method used for
// database lookups.
func (e *encryptor) EncryptForLookupIfEnabled(plaintext string) (string, error) {
	if !isEncryptionEnabled() {
		return plaintext, nil
	}
	return e.EncryptForLookup(plaintext)
}

func (e *encryptor) DecryptIfEnabled(ciphertext string) (string, error) {
	if !isEncryptionEnabled() {
		return ciphertext, nil
	}
	return e.Decrypt(ciphertext)
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv(envEncryptionSecret)
	switch {
	case secret == "":
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", envEncryptionSecret)
	case len(secret) < 32:
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	return pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), models.Iterations, models.KeySize, sha256.New), nil
}

func isEncryptionEnabled() bool {
	return os.Getenv(envEncryptionEnabled) == "true"
}
