package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "test-key", ExpirationHours: 1})

	token, err := util.GenerateToken("owner@example.com", "user1", "org1", "Acme", "owner")
	require.NoError(t, err)

	claims, err := util.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.UserID)
	assert.Equal(t, "org1", claims.TenantID)
	assert.Equal(t, "Acme", claims.TenantName)
	assert.Equal(t, "owner", claims.Role)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	token, err := NewJWTUtil(&JWTConfig{SigningKey: "a", ExpirationHours: 1}).
		GenerateToken("x@example.com", "user1", "", "", "")
	require.NoError(t, err)

	_, err = NewJWTUtil(&JWTConfig{SigningKey: "b"}).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "k"})
	claims := UserClaims{
		UserID: "user1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = util.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateRequiresUserID(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "k", ExpirationHours: 1})
	token, err := util.GenerateToken("x@example.com", "", "org1", "", "")
	require.NoError(t, err)

	_, err = util.ValidateToken(token)
	assert.Error(t, err)
}

func TestNilConfig(t *testing.T) {
	util := NewJWTUtil(nil)
	_, err := util.GenerateToken("", "", "", "", "")
	assert.Error(t, err)
	_, err = util.ValidateToken("abc")
	assert.Error(t, err)
}
