package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callboard/pkg/types"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("test-secret")
	require.NoError(t, err)
	return r
}

func TestNewResolver_RequiresSecret(t *testing.T) {
	_, err := NewResolver("")
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestResolver_RoundTrip(t *testing.T) {
	r := newResolver(t)

	tests := []types.Identity{
		{UserID: "p1", Role: types.RoleParent},
		{UserID: "t1", Role: types.RoleTeacher, SchoolID: "s1"},
		{UserID: "a1", Role: types.RoleSchoolAdmin, SchoolID: "s1"},
		{UserID: "root", Role: types.RoleSuperAdmin},
	}
	for _, want := range tests {
		t.Run(string(want.Role), func(t *testing.T) {
			token, err := r.Issue(want, time.Hour)
			require.NoError(t, err)

			got, err := r.Resolve(token)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestResolver_Rejects(t *testing.T) {
	r := newResolver(t)
	other, err := NewResolver("other-secret")
	require.NoError(t, err)

	foreign, err := other.Issue(types.Identity{UserID: "p1", Role: types.RoleParent}, time.Hour)
	require.NoError(t, err)

	_, err = r.Resolve("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = r.Resolve("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = r.Resolve(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong signing secret")
}

func TestResolver_Expired(t *testing.T) {
	r := newResolver(t)
	r.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := r.Issue(types.Identity{UserID: "p1", Role: types.RoleParent}, time.Hour)
	require.NoError(t, err)

	r.now = time.Now
	_, err = r.Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver_RejectsNoneAlgorithm(t *testing.T) {
	r := newResolver(t)
	claims := Claims{Role: "parent", RegisteredClaims: jwt.RegisteredClaims{Subject: "p1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = r.Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver_InvalidClaims(t *testing.T) {
	r := newResolver(t)

	sign := func(c Claims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(r.secret)
		require.NoError(t, err)
		return token
	}

	_, err := r.Resolve(sign(Claims{Role: "janitor", RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}))
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = r.Resolve(sign(Claims{Role: "teacher", RegisteredClaims: jwt.RegisteredClaims{Subject: "t1"}}))
	assert.ErrorIs(t, err, ErrInvalidClaims, "staff token without school")

	_, err = r.Resolve(sign(Claims{Role: "parent"}))
	assert.ErrorIs(t, err, ErrInvalidClaims, "missing subject")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"", "", ErrMissingToken},
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"Basic abc", "", ErrInvalidToken},
		{"Bearer", "", ErrInvalidToken},
		{"Bearer ", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/calls", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(req)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, "header %q", tt.header)
			continue
		}
		require.NoError(t, err, "header %q", tt.header)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolver_ResolveRequest(t *testing.T) {
	r := newResolver(t)
	token, err := r.Issue(types.Identity{UserID: "p1", Role: types.RoleParent}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/calls", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	got, err := r.ResolveRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.UserID)
}
