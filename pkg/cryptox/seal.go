// Package cryptox seals credentials before they touch disk. File and
// database backed credential stores hold a long-lived renewal credential;
// leaving it in plaintext would make any backup or stolen laptop a full
// session takeover.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer performs authenticated encryption of credential material using
// XChaCha20-Poly1305. The sealed format is [24-byte nonce][ciphertext+tag].
type Sealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewSealer derives a sealing key from arbitrary key material via SHA-256
// and returns a ready Sealer.
func NewSealer(keyMaterial []byte) (*Sealer, error) {
	key := sha256.Sum256(keyMaterial)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadSealer builds a Sealer from, in order: the key file at path (if
// non-empty), the GESTOR_STORE_KEY environment variable, or a generated
// ephemeral key. The ephemeral fallback means sealed credentials do not
// survive a restart; acceptable in development, logged by callers.
func LoadSealer(path string) (*Sealer, bool, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("cryptox: read key file: %w", err)
		}
		s, err := NewSealer(data)
		return s, false, err
	}

	if env := os.Getenv("GESTOR_STORE_KEY"); env != "" {
		s, err := NewSealer([]byte(env))
		return s, false, err
	}

	ephemeral := make([]byte, 32)
	if _, err := rand.Read(ephemeral); err != nil {
		return nil, false, fmt.Errorf("cryptox: generate ephemeral key: %w", err)
	}
	s, err := NewSealer(ephemeral)
	return s, true, err
}

// Seal encrypts and authenticates plaintext with a random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal, verifying the authentication tag.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("cryptox: sealed data too short")
	}
	plaintext, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: open failed: %w", err)
	}
	return plaintext, nil
}
