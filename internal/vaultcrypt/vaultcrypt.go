// Package vaultcrypt encrypts and decrypts individual records with
// AES-256-GCM. Ciphertexts are laid out as nonce || sealed data, with a
// fresh random nonce per encryption.
package vaultcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/vkarpenko/passkeeper/internal/kdf"
)

// NonceSize is the GCM standard nonce size.
const NonceSize = 12

// ErrAuthentication is returned whenever a ciphertext fails to decrypt.
// A wrong key and a tampered ciphertext are deliberately
// indistinguishable: this sentinel carries no detail about the cause.
var ErrAuthentication = errors.New("authentication failed")

func newAEAD(key *kdf.Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under key with a fresh random nonce and
// returns nonce || ciphertext.
func Encrypt(key *kdf.Key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce || ciphertext blob produced by Encrypt.
// Any failure to authenticate, including a truncated blob, yields
// ErrAuthentication.
func Decrypt(key *kdf.Key, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < NonceSize {
		return nil, ErrAuthentication
	}

	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
