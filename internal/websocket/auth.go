package websocket

import "crypto/subtle"

// TokenAuthenticator checks the shared classroom display secret.
// Every display in the deployment uses the same token; holding it lets a
// client join any channel.
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator creates an authenticator for the deployment secret.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// Authenticate reports whether token equals the secret, in constant time.
// An unconfigured secret rejects everything.
func (a *TokenAuthenticator) Authenticate(token string) bool {
	if len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), a.secret) == 1
}
