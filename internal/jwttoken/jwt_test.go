package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tradepost/pkg/domain-errors"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-signing-key", "tradepost", "tradepost-api")

	token, err := svc.GenerateAccessToken("0xalice", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "0xalice", claims.Address.String())
}

func TestJWTRejectsEmptyAddress(t *testing.T) {
	svc := NewJWTService("test-signing-key", "tradepost", "tradepost-api")

	_, err := svc.GenerateAccessToken("", time.Hour)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("test-signing-key", "tradepost", "tradepost-api")

	token, err := svc.GenerateAccessToken("0xalice", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	issuer := NewJWTService("key-one", "tradepost", "tradepost-api")
	verifier := NewJWTService("key-two", "tradepost", "tradepost-api")

	token, err := issuer.GenerateAccessToken("0xalice", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestJWTRejectsWrongAudience(t *testing.T) {
	issuer := NewJWTService("test-signing-key", "tradepost", "other-api")
	verifier := NewJWTService("test-signing-key", "tradepost", "tradepost-api")

	token, err := issuer.GenerateAccessToken("0xalice", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}
