// Package crypto seals shopper PII before it is written to Postgres.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Purposes bind a ciphertext to the column it was written for, so a value
// copied into another column fails to open.
const (
	PurposeRefundEmail = "refund.email"
)

const sealedPrefix = "v1:"

var (
	ErrMissingKey         = errors.New("encryption key is required")
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrUnknownFormat      = errors.New("ciphertext has an unknown format")
)

type Encryptor interface {
	Seal(purpose, plaintext string) (string, error)
	Open(purpose, sealed string) (string, error)
}

type fieldSealer struct {
	aead cipher.AEAD
}

// NewEncryptor builds an AES-256-GCM sealer from a 32-byte key.
func NewEncryptor(key string) (Encryptor, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &fieldSealer{aead: aead}, nil
}

func (s *fieldSealer) Seal(purpose, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(purpose))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *fieldSealer) Open(purpose, sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrUnknownFormat
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(data) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	nonce, body := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, body, []byte(purpose))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", purpose, err)
	}
	return string(plaintext), nil
}
