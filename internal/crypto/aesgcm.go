// Package crypto encrypts the stored Drive refresh token at rest.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Encryptor defines the interface for encryption and decryption.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// AESEncryptor implements Encryptor with AES-256-GCM using a key derived
// from the configured secret.
type AESEncryptor struct {
	key [32]byte
}

// NewAESEncryptor derives a 256-bit key from secret.
func NewAESEncryptor(secret string) *AESEncryptor {
	return &AESEncryptor{key: sha256.Sum256([]byte(secret))}
}

// Encrypt returns base64(nonce || ciphertext).
func (e *AESEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to build GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *AESEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to build GCM: %w", err)
	}
	if len(decoded) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := decoded[:gcm.NonceSize()], decoded[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt data: %w", err)
	}
	return string(plain), nil
}
