// Package auth authorises run triggers against a shared secret.
package auth

import (
	"crypto/subtle"

	"github.com/rotisserie/eris"
)

// ErrUnauthorized is returned when a run credential is missing or wrong.
var ErrUnauthorized = eris.New("auth: unauthorized")

// Authorizer checks run credentials. The zero value rejects everything.
type Authorizer struct {
	secret []byte
	open   bool
}

// NewSecret returns an Authorizer that accepts exactly secret. An empty
// secret rejects every credential.
func NewSecret(secret string) *Authorizer {
	return &Authorizer{secret: []byte(secret)}
}

// AllowAll returns an Authorizer that accepts any credential. Used by local
// CLI runs that already hold the store credentials.
func AllowAll() *Authorizer {
	return &Authorizer{open: true}
}

// Authorize returns ErrUnauthorized unless cred matches the configured secret.
func (a *Authorizer) Authorize(cred string) error {
	if a == nil {
		return ErrUnauthorized
	}
	if a.open {
		return nil
	}
	if len(a.secret) == 0 || cred == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(cred), a.secret) != 1 {
		return ErrUnauthorized
	}
	return nil
}
