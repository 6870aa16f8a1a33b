package vaultcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarpenko/passkeeper/internal/kdf"
)

func testKey(t *testing.T, password string) *kdf.Key {
	t.Helper()
	salt, err := kdf.NewSalt()
	require.NoError(t, err)
	key, err := kdf.Derive(password, salt, kdf.Params{Algorithm: kdf.AlgPBKDF2, Iterations: 100_000})
	require.NoError(t, err)
	t.Cleanup(key.Wipe)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t, "master")

	plaintext := []byte(`{"title":"example.com","secret":"hunter2"}`)
	ciphertext, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecrypt_WrongKey(t *testing.T) {
	k1 := testKey(t, "master-one")
	k2 := testKey(t, "master-two")

	ciphertext, err := Encrypt(k1, []byte("secret"))
	require.NoError(t, err)

	got, err := Decrypt(k2, ciphertext)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Nil(t, got, "no garbage plaintext on failure")
}

func TestDecrypt_Tampered(t *testing.T) {
	key := testKey(t, "master")

	ciphertext, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	// flip one bit in the sealed portion
	ciphertext[len(ciphertext)-1] ^= 0x01
	_, err = Decrypt(key, ciphertext)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecrypt_Truncated(t *testing.T) {
	key := testKey(t, "master")

	_, err := Decrypt(key, []byte("short"))
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = Decrypt(key, nil)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	key := testKey(t, "master")
	plaintext := []byte("same plaintext")

	c1, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	c2, err := Encrypt(key, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "same plaintext must never produce the same ciphertext twice")
	assert.NotEqual(t, c1[:NonceSize], c2[:NonceSize], "nonces must differ")
}
