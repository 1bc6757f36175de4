package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	masterKey := []byte("correct-horse-battery-staple")

	envelope, err := Encrypt(masterKey, "hunter2", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, envelope)

	plaintext := Decrypt(masterKey, envelope)
	assert.Equal(t, "hunter2", plaintext)
}

func TestDecryptWrongKeyReturnsEmptyString(t *testing.T) {
	envelope, err := Encrypt([]byte("key-a"), "secret", 0)
	require.NoError(t, err)

	assert.Equal(t, "", Decrypt([]byte("key-b"), envelope))
}

func TestDecryptMalformedEnvelopeReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", Decrypt([]byte("key"), "not-a-valid-envelope"))
	assert.Equal(t, "", Decrypt([]byte("key"), ""))
}

func TestEncryptRequiresMasterKey(t *testing.T) {
	_, err := Encrypt(nil, "secret", 0)
	assert.Error(t, err)
}

func TestEncryptUsesFreshSaltEachTime(t *testing.T) {
	masterKey := []byte("same-key")
	a, err := Encrypt(masterKey, "value", 0)
	require.NoError(t, err)
	b, err := Encrypt(masterKey, "value", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "value", Decrypt(masterKey, a))
	assert.Equal(t, "value", Decrypt(masterKey, b))
}

func TestEncryptCustomIterations(t *testing.T) {
	masterKey := []byte("key")
	envelope, err := Encrypt(masterKey, "value", 1000)
	require.NoError(t, err)
	assert.Equal(t, "value", Decrypt(masterKey, envelope))
}
