// Package secrets seals provider API keys before they are written to storage.
package secrets

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

	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "v1:"

var hkdfInfo = []byte("keyring provider credential")

// ErrMalformed is returned when a sealed value cannot be decoded or authenticated.
var ErrMalformed = errors.New("malformed sealed secret")

// Sealer protects secrets at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// New returns an AES-256-GCM sealer keyed from passphrase, or a pass-through
// sealer when passphrase is empty.
func New(passphrase string) (Sealer, error) {
	if passphrase == "" {
		return plain{}, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &gcmSealer{aead: aead}, nil
}

type gcmSealer struct {
	aead cipher.AEAD
}

func (s *gcmSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open decrypts a sealed value. Values stored before sealing was enabled
// carry no prefix and are returned unchanged.
func (s *gcmSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", ErrMalformed
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plaintext), nil
}

type plain struct{}

func (plain) Seal(plaintext string) (string, error) { return plaintext, nil }

func (plain) Open(sealed string) (string, error) {
	if strings.HasPrefix(sealed, sealedPrefix) {
		return "", fmt.Errorf("%w: sealed value but no encryption key configured", ErrMalformed)
	}
	return sealed, nil
}
