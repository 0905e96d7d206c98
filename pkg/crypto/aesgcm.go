package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidAESKeySize     = errors.New("invalid AES key size")
	ErrInvalidTokenFormat    = errors.New("invalid token format, expecting base64 encoded nonce+ciphertext")
	ErrCiphertextTooShort    = errors.New("ciphertext too short, cannot extract nonce")
	ErrTokenDecryptionFailed = errors.New("token decryption failed")
)

const (
	// AES-256 requires a 32-byte key.
	aes256KeyBytes = 32
	// GCM standard nonce size.
	gcmNonceSizeBytes = 12
)

func newGCM(aesKeyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(aesKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode AES key from hex: %w", err)
	}
	if len(key) != aes256KeyBytes {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAESKeySize, aes256KeyBytes, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// SealSessionToken encrypts a session payload into a URL-safe token: base64(nonce || ciphertext).
func SealSessionToken(aesKeyHex string, plaintext []byte) (string, error) {
	gcm, err := newGCM(aesKeyHex)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcmNonceSizeBytes)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// OpenSessionToken reverses SealSessionToken.
func OpenSessionToken(aesKeyHex string, token string) ([]byte, error) {
	gcm, err := newGCM(aesKeyHex)
	if err != nil {
		return nil, err
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenFormat, err)
	}
	if len(raw) < gcmNonceSizeBytes {
		return nil, fmt.Errorf("%w: length %d, minimum %d", ErrCiphertextTooShort, len(raw), gcmNonceSizeBytes)
	}

	plaintext, err := gcm.Open(nil, raw[:gcmNonceSizeBytes], raw[gcmNonceSizeBytes:], nil)
	if err != nil {
		// Usually "cipher: message authentication failed": wrong key or tampered token.
		return nil, ErrTokenDecryptionFailed
	}
	return plaintext, nil
}
