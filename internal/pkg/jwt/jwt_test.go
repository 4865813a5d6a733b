package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken(42, testSecret, 24)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
}

func TestParseWrongSecret(t *testing.T) {
	token, err := GenerateToken(42, testSecret, 24)
	require.NoError(t, err)

	_, err = ParseToken(token, "another-secret")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	claims := Claims{
		UserID: 7,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(past.Add(time.Hour)),
			IssuedAt:  jwtlib.NewNumericDate(past),
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejectsUnsignedAlg(t *testing.T) {
	claims := Claims{UserID: 7}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	require.ErrorIs(t, err, ErrInvalidToken)
}
