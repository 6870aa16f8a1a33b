package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredential_Validate(t *testing.T) {
	valid := Credential{Title: "example.com", Secret: "hunter2"}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, Credential{Secret: "hunter2"}.Validate(), ErrTitleRequired)
	assert.ErrorIs(t, Credential{Title: "   ", Secret: "hunter2"}.Validate(), ErrTitleRequired)
	assert.ErrorIs(t, Credential{Title: "example.com"}.Validate(), ErrSecretRequired)
}

func TestCredential_CompareKey(t *testing.T) {
	a := Credential{Title: "Example.COM ", Username: " Alice"}
	b := Credential{Title: "example.com", Username: "alice"}
	c := Credential{Title: "example.com", Username: "bob"}

	assert.Equal(t, a.CompareKey(), b.CompareKey())
	assert.NotEqual(t, a.CompareKey(), c.CompareKey())
}

func TestCredential_Copy(t *testing.T) {
	orig := Credential{ID: "1", Title: "t", Username: "u", Secret: "s", Notes: "n", Category: "c"}
	cp := orig.Copy()
	assert.Equal(t, orig, cp)

	cp.Secret = "changed"
	assert.Equal(t, "s", orig.Secret)
}

func TestCredential_Payload(t *testing.T) {
	rec := Credential{Title: "t", Username: "u", Secret: "s", Notes: "n", Category: "c"}
	p := rec.Payload()
	assert.Equal(t, SecretPayload{Title: "t", Username: "u", Secret: "s", Notes: "n"}, p)
}
