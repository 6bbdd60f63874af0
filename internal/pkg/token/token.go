package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewResponseToken generates a cryptographically random 64-character hex token.
func NewResponseToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate response token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash returns the storage key for a token. Only hashes are persisted.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
