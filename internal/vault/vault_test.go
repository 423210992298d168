package vault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestVault_RejectsBadKeyLength(t *testing.T) {
	_, err := New([]byte("too short"))
	assert.Error(t, err, "short key must be rejected")

	_, err = New(make([]byte, 64))
	assert.Error(t, err, "oversized key must be rejected")

	_, err = New(nil)
	assert.Error(t, err, "nil key must be rejected")
}

func TestVault_RoundTrip(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	for _, token := range []string{
		"1234567890:AAHdqTcvbXYZ_fake_bot_token",
		"",
		"короткий токен с юникодом",
	} {
		blob, err := v.Encrypt(token)
		require.NoError(t, err)

		got, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, token, got)
	}
}

func TestVault_EncryptIsNonDeterministic(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	a, err := v.Encrypt("same token")
	require.NoError(t, err)
	b, err := v.Encrypt("same token")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "nonces must differ between encryptions")
}

func TestVault_DecryptBitFlipFails(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	blob, err := v.Encrypt("1234567890:AAHdqTcvbXYZ_fake_bot_token")
	require.NoError(t, err)

	// flip one bit in the ciphertext body
	blob[len(blob)-1] ^= 0x01

	_, err = v.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCredentialCorrupt), "want ErrCredentialCorrupt, got %v", err)
}

func TestVault_DecryptShortBlobFails(t *testing.T) {
	v, err := New(testKey())
	require.NoError(t, err)

	_, err = v.Decrypt([]byte{0x01, 0x02})
	assert.True(t, errors.Is(err, ErrCredentialCorrupt))

	_, err = v.Decrypt(nil)
	assert.True(t, errors.Is(err, ErrCredentialCorrupt))
}

func TestVault_WrongKeyFails(t *testing.T) {
	v1, err := New(testKey())
	require.NoError(t, err)

	otherKey := testKey()
	otherKey[0] ^= 0xFF
	v2, err := New(otherKey)
	require.NoError(t, err)

	blob, err := v1.Encrypt("secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(blob)
	assert.True(t, errors.Is(err, ErrCredentialCorrupt))
}
