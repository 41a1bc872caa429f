package crypto

import (
	"context"
	"strings"
)

// MockEncryptor implements Encryptor for tests. It prefixes plaintext so
// assertions can tell encrypted values apart without real crypto.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return "mock:" + plaintext, nil
}

func (m *MockEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "mock:"), nil
}
