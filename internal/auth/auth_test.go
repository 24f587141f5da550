package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret)
	userID := uuid.New()

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  userID.String(),
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.True(t, claims.IsAdmin())
}

func TestVerifier_Verify_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Verify_Expired(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Verify_BadSubject(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Verify_Garbage(t *testing.T) {
	v := NewVerifier(testSecret)

	_, err := v.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Verify_NoRole(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin())
}
