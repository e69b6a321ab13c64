// Package auth resolves bearer tokens into caller identities.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"callboard/pkg/interfaces"
	"callboard/pkg/types"
)

// Claims carried by a callboard access token. The subject is the user id.
type Claims struct {
	Role     string `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
	jwt.RegisteredClaims
}

// Resolver verifies HS256 tokens signed with a shared secret.
type Resolver struct {
	secret []byte
	now    func() time.Time
}

var _ interfaces.IdentityResolver = (*Resolver)(nil)

// NewResolver creates a resolver for the given signing secret.
func NewResolver(secret string) (*Resolver, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	return &Resolver{secret: []byte(secret), now: time.Now}, nil
}

// Resolve verifies a raw token and returns the identity it names.
func (r *Resolver) Resolve(token string) (types.Identity, error) {
	if token == "" {
		return types.Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		// Reject anything but HMAC so an unsigned or RSA-swapped token never verifies
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithTimeFunc(r.now))
	if err != nil || !parsed.Valid {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, err := types.ParseRole(claims.Role)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	identity := types.Identity{
		UserID:   claims.Subject,
		Role:     role,
		SchoolID: claims.SchoolID,
	}
	if err := identity.Validate(); err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return identity, nil
}

// ResolveRequest extracts the bearer token from the Authorization header and
// resolves it.
func (r *Resolver) ResolveRequest(req *http.Request) (types.Identity, error) {
	token, err := BearerToken(req)
	if err != nil {
		return types.Identity{}, err
	}
	return r.Resolve(token)
}

// Issue signs a token for identity valid for ttl. A zero ttl issues a token
// without expiry.
func (r *Resolver) Issue(identity types.Identity, ttl time.Duration) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	now := r.now()
	claims := Claims{
		Role:     string(identity.Role),
		SchoolID: identity.SchoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header.
func BearerToken(req *http.Request) (string, error) {
	h := req.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}
