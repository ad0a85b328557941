package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ciphertextPrefix tags sealed values so plaintext rows written before
// encryption was configured can still be read.
const ciphertextPrefix = "v1:"

// MinKeyLength is the shortest secret accepted as an encryption key.
const MinKeyLength = 16

var (
	ErrEmptyKey = errors.New("encryption key is empty")
	ErrShortKey = fmt.Errorf("encryption key must be at least %d bytes", MinKeyLength)
)

// EncryptionService seals payer phone numbers with AES-GCM. Every value gets a
// fresh random nonce: v1:base64(nonce || ciphertext).
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService accepts a raw 16, 24 or 32 byte AES key. Any other
// secret of at least MinKeyLength bytes is stretched to 32 bytes with SHA-256.
func NewEncryptionService(key string) (*EncryptionService, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if len(key) < MinKeyLength {
		return nil, ErrShortKey
	}
	k := []byte(key)
	switch len(k) {
	case 16, 24, 32:
	default:
		sum := sha256.Sum256(k)
		k = sum[:]
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens values produced by Encrypt. Untagged input is returned as is.
func (e *EncryptionService) Decrypt(value string) (string, error) {
	b64, ok := strings.CutPrefix(value, ciphertextPrefix)
	if !ok {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return "", errors.New("ciphertext too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := e.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
