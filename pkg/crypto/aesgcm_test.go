package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"id":"op-1","table":"admins"}`)

	token, err := SealSessionToken(testKey, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	got, err := OpenSessionToken(testKey, token)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	other, err := SealSessionToken(testKey, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "nonce must differ per token")
}

func TestOpenSessionTokenErrors(t *testing.T) {
	token, err := SealSessionToken(testKey, []byte("payload"))
	require.NoError(t, err)

	_, err = OpenSessionToken(strings.Repeat("ab", 32), token)
	assert.ErrorIs(t, err, ErrTokenDecryptionFailed)

	_, err = OpenSessionToken(testKey, "not base64!")
	assert.ErrorIs(t, err, ErrInvalidTokenFormat)

	_, err = OpenSessionToken(testKey, "AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = OpenSessionToken("abcd", token)
	assert.ErrorIs(t, err, ErrInvalidAESKeySize)

	_, err = SealSessionToken("zz", []byte("x"))
	assert.Error(t, err)
}
