// Package seal encrypts share strings at rest with XChaCha20-Poly1305.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrOpen = errors.New("sealed value cannot be opened")

// Sealer binds ciphertexts to a purpose string (switch id, beneficiary id) via
// the AEAD additional data, so a sealed share cannot be moved to another row.
type Sealer struct {
	key []byte
}

// New returns a Sealer for a 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{key: k}, nil
}

// NewFromHex decodes a hex key as found in configuration.
func NewFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	return New(key)
}

// Seal returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext, binding string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(binding))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any tampering or a wrong binding yields ErrOpen.
func (s *Sealer) Open(sealed, binding string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrOpen
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrOpen
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, []byte(binding))
	if err != nil {
		return "", ErrOpen
	}
	return string(pt), nil
}

// Binding names the row a sealed value belongs to.
func Binding(parts ...string) string {
	return strings.Join(parts, "/")
}

// ShareBinding is the binding of a stored share. beneficiaryID is empty for
// the shares kept on the switch itself.
func ShareBinding(switchID, beneficiaryID string, shareID int) string {
	if beneficiaryID == "" {
		return Binding(switchID, "share", fmt.Sprint(shareID))
	}
	return Binding(switchID, beneficiaryID, "share", fmt.Sprint(shareID))
}
