package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	tokens := NewTokens([]byte("signing-key"), time.Hour)

	token, err := tokens.Issue("user-1", true)
	require.NoError(t, err)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.Admin)
}

func TestVerifyRejects(t *testing.T) {
	tokens := NewTokens([]byte("signing-key"), time.Hour)
	other := NewTokens([]byte("other-key"), time.Hour)

	foreign, err := other.Issue("user-1", false)
	require.NoError(t, err)

	expired := NewTokens([]byte("signing-key"), time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("user-1", false)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("signing-key"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":    "not-a-token",
		"wrong key":  foreign,
		"expired":    old,
		"alg none":   none,
		"no subject": noSubject,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{ID: "u1", IsAdmin: true})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.ID)
	assert.True(t, id.IsAdmin)
}
