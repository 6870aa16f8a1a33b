package passgen

import (
	"strings"
	"unicode"
)

// Strength labels, from weakest to strongest.
const (
	LabelVeryWeak   = "Very Weak"
	LabelWeak       = "Weak"
	LabelFair       = "Fair"
	LabelGood       = "Good"
	LabelStrong     = "Strong"
	LabelVeryStrong = "Very Strong"
	LabelExcellent  = "Excellent"
)

// Strength scores a password from 0 to 7: one point per length
// threshold (8, 12, 16) and one per character class present.
func Strength(password string) (int, string) {
	score := 0

	if len(password) >= 8 {
		score++
	}
	if len(password) >= 12 {
		score++
	}
	if len(password) >= 16 {
		score++
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(symbolChars, r):
			symbol = true
		}
	}
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			score++
		}
	}

	labels := []string{
		LabelVeryWeak, LabelVeryWeak, LabelWeak, LabelFair,
		LabelGood, LabelStrong, LabelVeryStrong, LabelExcellent,
	}
	return score, labels[score]
}
