package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCiphertextTooShort is returned for input shorter than a GCM nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// EncryptionService encrypts credentials held by the profile store.
// Every browser profile gets its own key derived from one master key, and the
// profile ID is bound as additional data so a ciphertext copied between
// profiles fails to open.
type EncryptionService struct {
	masterKey []byte
}

// NewEncryptionService creates a new encryption service with the given master key
// masterKey should be a 32-byte hex-encoded string (64 characters)
func NewEncryptionService(masterKeyHex string) (*EncryptionService, error) {
	if masterKeyHex == "" {
		return nil, errors.New("encryption master key is required")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format (must be hex): %w", err)
	}

	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (64 hex characters), got %d bytes", len(masterKey))
	}

	return &EncryptionService{masterKey: masterKey}, nil
}

// DeriveProfileKey derives the AES-256 key for one profile using HKDF-SHA256.
func (e *EncryptionService) DeriveProfileKey(profileID string) ([]byte, error) {
	if profileID == "" {
		return nil, errors.New("profile ID is required for key derivation")
	}

	r := hkdf.New(sha256.New, e.masterKey, []byte(profileID), []byte("vibe-profile-encryption"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive profile key: %w", err)
	}
	return key, nil
}

func (e *EncryptionService) aead(profileID string) (cipher.AEAD, error) {
	key, err := e.DeriveProfileKey(profileID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext for profileID and returns base64(nonce || ciphertext).
// Empty input yields an empty string.
func (e *EncryptionService) Seal(profileID string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	gcm, err := e.aead(profileID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(profileID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Empty input yields nil.
func (e *EncryptionService) Open(profileID string, encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := e.aead(profileID)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, body, []byte(profileID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealString is Seal for strings.
func (e *EncryptionService) SealString(profileID, plaintext string) (string, error) {
	return e.Seal(profileID, []byte(plaintext))
}

// OpenString is Open for strings.
func (e *EncryptionService) OpenString(profileID, encoded string) (string, error) {
	plaintext, err := e.Open(profileID, encoded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateMasterKey generates a new random 32-byte master key, hex encoded.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
