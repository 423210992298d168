// Package vault performs authenticated encryption of stored bot credentials.
package vault

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCredentialCorrupt is returned when a ciphertext fails authentication.
// It signals tampering or a wrong key and must never be swallowed: a delivery
// attempt hitting it is recorded as a failure, not retried.
var ErrCredentialCorrupt = errors.New("credential corrupt: ciphertext failed authentication")

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Vault encrypts and decrypts bot tokens with XChaCha20-Poly1305.
// It is immutable after construction and safe for concurrent use.
type Vault struct {
	key []byte
}

// New creates a Vault from a raw 32-byte key. A missing or wrong-length key
// is a hard error so the process refuses to start rather than silently
// storing tokens in plaintext.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Vault{key: k}, nil
}

// Encrypt seals a plaintext token. The random nonce is prepended to the
// returned blob.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a blob produced by Encrypt. Returns ErrCredentialCorrupt if
// the blob is too short or the authentication tag does not verify; corrupted
// plaintext is never returned.
func (v *Vault) Decrypt(blob []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	if len(blob) < aead.NonceSize() {
		return "", ErrCredentialCorrupt
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCredentialCorrupt
	}

	return string(plaintext), nil
}
