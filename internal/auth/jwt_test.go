package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseTokenValid(t *testing.T) {
	signed := signToken(t, "secret", Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ParseToken("secret", signed)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
}

func TestParseTokenWrongSecret(t *testing.T) {
	signed := signToken(t, "secret", Claims{UserID: 42})

	_, err := ParseToken("other", signed)
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	signed := signToken(t, "secret", Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := ParseToken("secret", signed)
	assert.Error(t, err)
}

func TestParseTokenMissingUserID(t *testing.T) {
	signed := signToken(t, "secret", Claims{})

	_, err := ParseToken("secret", signed)
	assert.Error(t, err)
}
