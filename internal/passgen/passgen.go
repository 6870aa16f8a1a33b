// Package passgen generates passwords and passphrases for the UI
// layer. It sits outside the vault's security boundary but draws all
// randomness from crypto/rand.
package passgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/sethvargo/go-diceware/diceware"
)

const (
	// MinLength and MaxLength bound generated password lengths.
	MinLength = 8
	MaxLength = 128

	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	symbolChars    = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

var (
	// ErrBadLength is returned for lengths outside [MinLength, MaxLength].
	ErrBadLength = fmt.Errorf("password length must be between %d and %d", MinLength, MaxLength)
	// ErrNoCharClasses is returned when every character class is disabled.
	ErrNoCharClasses = errors.New("at least one character class must be enabled")
)

// Options selects the character classes for Generate.
type Options struct {
	Length    int
	Lowercase bool
	Uppercase bool
	Digits    bool
	Symbols   bool
}

// DefaultOptions enables every class at 16 characters.
func DefaultOptions() Options {
	return Options{Length: 16, Lowercase: true, Uppercase: true, Digits: true, Symbols: true}
}

// Generate returns a random password containing at least one character
// from each enabled class, shuffled so the guaranteed characters do not
// occupy predictable positions.
func Generate(opts Options) (string, error) {
	if opts.Length < MinLength || opts.Length > MaxLength {
		return "", ErrBadLength
	}

	var classes []string
	if opts.Lowercase {
		classes = append(classes, lowercaseChars)
	}
	if opts.Uppercase {
		classes = append(classes, uppercaseChars)
	}
	if opts.Digits {
		classes = append(classes, digitChars)
	}
	if opts.Symbols {
		classes = append(classes, symbolChars)
	}
	if len(classes) == 0 {
		return "", ErrNoCharClasses
	}

	all := strings.Join(classes, "")
	out := make([]byte, 0, opts.Length)

	// One guaranteed character per enabled class.
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < opts.Length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

// Passphrase returns words random diceware words joined by sep.
func Passphrase(words int, sep string) (string, error) {
	if words < 1 {
		return "", errors.New("passphrase must contain at least one word")
	}
	list, err := diceware.Generate(words)
	if err != nil {
		return "", fmt.Errorf("generate passphrase: %w", err)
	}
	return strings.Join(list, sep), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

// shuffle is a Fisher-Yates pass using crypto/rand.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}
