package secretbox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

// ParseKey decodes a 64-hex-character vault key into the 32 raw bytes
// chacha20poly1305 requires.
func ParseKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid hex", appErr.ErrEncryption)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", appErr.ErrEncryption, chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEncryption, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func Open(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEncryption, err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", appErr.ErrEncryption)
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt failed", appErr.ErrEncryption)
	}
	return plaintext, nil
}
