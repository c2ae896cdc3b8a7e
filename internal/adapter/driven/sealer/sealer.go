// Package sealer provides the authenticated cipher that protects stored
// credentials, together with loading of its key file.
package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Sealer = (*Sealer)(nil)

// Sealer implements driven.Sealer with XChaCha20-Poly1305. Sealed output is
// nonce (24 bytes) || ciphertext || tag.
type Sealer struct {
	aead cipher.AEAD
}

// New creates a Sealer for the given KeySize-byte key.
func New(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.NewX: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts sealed. Any failure wraps model.ErrCredentialInvalid.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: %w", model.ErrCredentialInvalid, errors.New("ciphertext too short"))
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", model.ErrCredentialInvalid, err)
	}
	return plaintext, nil
}
