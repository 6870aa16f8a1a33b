package passgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Length(t *testing.T) {
	for _, n := range []int{MinLength, 16, 32, MaxLength} {
		opts := DefaultOptions()
		opts.Length = n
		password, err := Generate(opts)
		require.NoError(t, err)
		assert.Len(t, password, n)
	}
}

func TestGenerate_BadLength(t *testing.T) {
	opts := DefaultOptions()
	opts.Length = MinLength - 1
	_, err := Generate(opts)
	assert.ErrorIs(t, err, ErrBadLength)

	opts.Length = MaxLength + 1
	_, err = Generate(opts)
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestGenerate_NoClasses(t *testing.T) {
	_, err := Generate(Options{Length: 16})
	assert.ErrorIs(t, err, ErrNoCharClasses)
}

func TestGenerate_ContainsEachEnabledClass(t *testing.T) {
	for i := 0; i < 50; i++ {
		password, err := Generate(DefaultOptions())
		require.NoError(t, err)
		assert.True(t, strings.ContainsAny(password, lowercaseChars), "missing lowercase: %q", password)
		assert.True(t, strings.ContainsAny(password, uppercaseChars), "missing uppercase: %q", password)
		assert.True(t, strings.ContainsAny(password, digitChars), "missing digit: %q", password)
		assert.True(t, strings.ContainsAny(password, symbolChars), "missing symbol: %q", password)
	}
}

func TestGenerate_RespectsDisabledClasses(t *testing.T) {
	opts := Options{Length: 32, Lowercase: true, Digits: true}
	for i := 0; i < 50; i++ {
		password, err := Generate(opts)
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(password, uppercaseChars), "unexpected uppercase: %q", password)
		assert.False(t, strings.ContainsAny(password, symbolChars), "unexpected symbol: %q", password)
	}
}

func TestGenerate_NotDeterministic(t *testing.T) {
	p1, err := Generate(DefaultOptions())
	require.NoError(t, err)
	p2, err := Generate(DefaultOptions())
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestPassphrase(t *testing.T) {
	phrase, err := Passphrase(6, "-")
	require.NoError(t, err)
	assert.Len(t, strings.Split(phrase, "-"), 6)

	_, err = Passphrase(0, "-")
	assert.Error(t, err)
}

func TestStrength(t *testing.T) {
	tests := []struct {
		password string
		score    int
		label    string
	}{
		{"", 0, LabelVeryWeak},
		{"abc", 1, LabelVeryWeak},
		{"abcdefgh", 2, LabelWeak},
		{"abcdefgh1", 3, LabelFair},
		{"Abcdefgh1", 4, LabelGood},
		{"Abcdefghijk1", 5, LabelStrong},
		{"Abcdefghijk1!", 6, LabelVeryStrong},
		{"Abcdefghijklmno1!", 7, LabelExcellent},
	}
	for _, tt := range tests {
		score, label := Strength(tt.password)
		assert.Equal(t, tt.score, score, "password %q", tt.password)
		assert.Equal(t, tt.label, label, "password %q", tt.password)
	}
}
