// Package kdf derives the vault's symmetric key from a master password.
// Derivation is deliberately slow so that brute-forcing a stolen vault
// file carries a per-attempt cost set by the header parameters.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLength is the derived key size (AES-256).
	KeyLength = 32
	// SaltLength is the vault salt size.
	SaltLength = 32
)

// Supported derivation algorithms, stamped into the vault header.
const (
	AlgPBKDF2   = "pbkdf2-sha256"
	AlgArgon2id = "argon2id"
)

// Algorithm cost defaults.
const (
	// DefaultPBKDF2Iterations follows current OWASP guidance for
	// PBKDF2-HMAC-SHA256.
	DefaultPBKDF2Iterations = 600_000
	// DefaultArgon2Time is the argon2id time parameter.
	DefaultArgon2Time = 3

	minPBKDF2Iterations = 100_000

	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
)

var (
	// ErrWeakPassword is returned when the master password is empty.
	ErrWeakPassword = errors.New("master password must not be empty")
	// ErrUnknownAlgorithm is returned for an unrecognized KDF name.
	ErrUnknownAlgorithm = errors.New("unknown key derivation algorithm")
	// ErrInvalidSalt is returned when the salt has the wrong length.
	ErrInvalidSalt = errors.New("invalid salt length")
)

// Params selects the derivation algorithm and its cost.
type Params struct {
	// Algorithm is AlgPBKDF2 or AlgArgon2id.
	Algorithm string
	// Iterations is the PBKDF2 iteration count, or the argon2id time
	// parameter.
	Iterations int
}

// DefaultParams returns the parameters used for newly created vaults.
func DefaultParams() Params {
	return Params{Algorithm: AlgPBKDF2, Iterations: DefaultPBKDF2Iterations}
}

// Normalize fills in algorithm defaults and validates the cost.
func (p Params) Normalize() (Params, error) {
	switch p.Algorithm {
	case AlgPBKDF2:
		if p.Iterations == 0 {
			p.Iterations = DefaultPBKDF2Iterations
		}
		if p.Iterations < minPBKDF2Iterations {
			return p, fmt.Errorf("pbkdf2 iteration count %d below minimum %d", p.Iterations, minPBKDF2Iterations)
		}
	case AlgArgon2id:
		if p.Iterations == 0 {
			p.Iterations = DefaultArgon2Time
		}
		if p.Iterations < 1 {
			return p, fmt.Errorf("argon2id time parameter %d below minimum 1", p.Iterations)
		}
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, p.Algorithm)
	}
	return p, nil
}

// Key is an opaque wipeable symmetric key. Callers must Wipe the key on
// every exit path once it is no longer needed; the runtime will not do
// it for them.
type Key struct {
	b []byte
}

// Derive produces a 32-byte key from the master password and salt.
// It is deterministic: the same inputs always yield the same key.
// The password and derived key are never logged.
func Derive(password string, salt []byte, p Params) (*Key, error) {
	if password == "" {
		return nil, ErrWeakPassword
	}
	if len(salt) != SaltLength {
		return nil, ErrInvalidSalt
	}
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	var b []byte
	switch p.Algorithm {
	case AlgPBKDF2:
		b = pbkdf2.Key([]byte(password), salt, p.Iterations, KeyLength, sha256.New)
	case AlgArgon2id:
		b = argon2.IDKey([]byte(password), salt, uint32(p.Iterations), argon2Memory, argon2Threads, KeyLength)
	}

	return &Key{b: b}, nil
}

// NewSalt generates a fresh random vault salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Bytes exposes the raw key material without copying. The slice becomes
// invalid after Wipe.
func (k *Key) Bytes() []byte {
	return k.b
}

// Equal compares two keys in constant time.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.b, other.b) == 1
}

// Wipe overwrites the key material. Safe to call more than once.
func (k *Key) Wipe() {
	if k == nil || len(k.b) == 0 {
		return
	}
	for i := range k.b {
		k.b[i] = 0
	}
	// Best effort second pass; memory is already zeroed if this fails.
	io.ReadFull(rand.Reader, k.b)
	for i := range k.b {
		k.b[i] = 0
	}
	k.b = nil
}
