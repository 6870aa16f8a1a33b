package kdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fast parameters so the suite stays quick
func testParams() Params {
	return Params{Algorithm: AlgPBKDF2, Iterations: 100_000}
}

func TestDerive_Deterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	k1, err := Derive("correct horse", salt, testParams())
	require.NoError(t, err)
	defer k1.Wipe()

	k2, err := Derive("correct horse", salt, testParams())
	require.NoError(t, err)
	defer k2.Wipe()

	assert.Equal(t, KeyLength, len(k1.Bytes()))
	assert.True(t, k1.Equal(k2), "same password and salt must derive the same key")
}

func TestDerive_DifferentInputsDifferentKeys(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	k1, err := Derive("password-one", salt, testParams())
	require.NoError(t, err)
	defer k1.Wipe()

	k2, err := Derive("password-two", salt, testParams())
	require.NoError(t, err)
	defer k2.Wipe()

	assert.False(t, k1.Equal(k2))

	otherSalt, err := NewSalt()
	require.NoError(t, err)
	k3, err := Derive("password-one", otherSalt, testParams())
	require.NoError(t, err)
	defer k3.Wipe()

	assert.False(t, k1.Equal(k3), "different salt must change the key")
}

func TestDerive_EmptyPassword(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	_, err = Derive("", salt, testParams())
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestDerive_BadSalt(t *testing.T) {
	_, err := Derive("password", []byte("short"), testParams())
	assert.ErrorIs(t, err, ErrInvalidSalt)
}

func TestDerive_Argon2id(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	p := Params{Algorithm: AlgArgon2id, Iterations: 1}
	k1, err := Derive("password", salt, p)
	require.NoError(t, err)
	defer k1.Wipe()

	k2, err := Derive("password", salt, p)
	require.NoError(t, err)
	defer k2.Wipe()

	require.Len(t, k1.Bytes(), KeyLength)
	assert.True(t, k1.Equal(k2))

	pb, err := Derive("password", salt, testParams())
	require.NoError(t, err)
	defer pb.Wipe()
	assert.False(t, k1.Equal(pb), "argon2id and pbkdf2 must not agree")
}

func TestParams_Normalize(t *testing.T) {
	p, err := Params{Algorithm: AlgPBKDF2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultPBKDF2Iterations, p.Iterations)

	_, err = Params{Algorithm: AlgPBKDF2, Iterations: 10}.Normalize()
	assert.Error(t, err, "iteration count below the floor must be rejected")

	_, err = Params{Algorithm: "md5"}.Normalize()
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestKey_Wipe(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	k, err := Derive("password", salt, testParams())
	require.NoError(t, err)

	b := k.Bytes()
	require.NotNil(t, b)
	k.Wipe()

	assert.Nil(t, k.Bytes())
	assert.True(t, bytes.Equal(b, make([]byte, len(b))), "wiped material must be zeroed")

	// second wipe is a no-op
	k.Wipe()
}
