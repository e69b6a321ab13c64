package auth

import "errors"

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidClaims  = errors.New("invalid token claims")
	ErrSecretRequired = errors.New("jwt secret is required")
)
