package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESEncryptorRoundtrip(t *testing.T) {
	e := NewAESEncryptor("portal-secret")
	ctx := context.Background()

	sealed, err := e.Encrypt(ctx, "refresh-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, "refresh-token-value", sealed)

	plain, err := e.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-value", plain)
}

func TestAESEncryptorNonceVaries(t *testing.T) {
	e := NewAESEncryptor("portal-secret")
	ctx := context.Background()

	a, err := e.Encrypt(ctx, "same input")
	require.NoError(t, err)
	b, err := e.Encrypt(ctx, "same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESEncryptorWrongKey(t *testing.T) {
	sealed, err := NewAESEncryptor("key-one").Encrypt(context.Background(), "secret")
	require.NoError(t, err)

	_, err = NewAESEncryptor("key-two").Decrypt(context.Background(), sealed)
	assert.Error(t, err)
}

func TestAESEncryptorGarbageInput(t *testing.T) {
	e := NewAESEncryptor("portal-secret")

	_, err := e.Decrypt(context.Background(), "not base64!!")
	assert.Error(t, err)

	_, err = e.Decrypt(context.Background(), "YWJj")
	assert.Error(t, err, "too short for a nonce")
}
