// Package models defines the core data structures for credential records
// and vault metadata.
package models

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrTitleRequired is returned when a credential has no title.
	ErrTitleRequired = errors.New("title is required")
	// ErrSecretRequired is returned when a credential has no secret value.
	ErrSecretRequired = errors.New("secret is required")
)

// Credential represents a single decrypted credential record.
// Instances exist only inside an unlocked session or an explicit
// plaintext export; they are never persisted in this form.
type Credential struct {
	// ID is the unique identifier for the record, assigned at creation
	// and never reused.
	ID string `json:"id"`
	// Title is the display name of the entry (site or service name).
	Title string `json:"title"`
	// Username is the login associated with the entry.
	Username string `json:"username,omitempty"`
	// Secret is the protected value (password, token, key material).
	Secret string `json:"secret"`
	// Notes holds free-form user notes.
	Notes string `json:"notes,omitempty"`
	// Category is a free-text tag used for grouping and filtering.
	Category string `json:"category,omitempty"`
	// CreatedAt is the record creation timestamp.
	CreatedAt time.Time `json:"created_at"`
	// ModifiedAt is the timestamp of the last mutation.
	ModifiedAt time.Time `json:"modified_at"`
}

// Copy returns an independent copy of the credential.
func (c Credential) Copy() Credential {
	return Credential{
		ID:         c.ID,
		Title:      c.Title,
		Username:   c.Username,
		Secret:     c.Secret,
		Notes:      c.Notes,
		Category:   c.Category,
		CreatedAt:  c.CreatedAt,
		ModifiedAt: c.ModifiedAt,
	}
}

// Validate checks that the credential carries the required fields.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	if c.Secret == "" {
		return ErrSecretRequired
	}
	return nil
}

// CompareKey returns the normalized key used for duplicate detection:
// lowercased, whitespace-trimmed title and username joined with a
// separator that cannot occur in either field.
func (c Credential) CompareKey() string {
	title := strings.ToLower(strings.TrimSpace(c.Title))
	user := strings.ToLower(strings.TrimSpace(c.Username))
	return title + "\x00" + user
}

// SecretPayload is the subset of a credential that is stored encrypted.
// Category and timestamps remain outside the ciphertext as record
// metadata.
type SecretPayload struct {
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
	Secret   string `json:"secret"`
	Notes    string `json:"notes,omitempty"`
}

// Payload extracts the encrypted portion of the credential.
func (c Credential) Payload() SecretPayload {
	return SecretPayload{
		Title:    c.Title,
		Username: c.Username,
		Secret:   c.Secret,
		Notes:    c.Notes,
	}
}
