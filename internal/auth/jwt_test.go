package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "opsdash", time.Hour, nil)
	user := &User{ID: "user-1", Username: "alice", Role: RoleAdministrator}

	token, err := svc.GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := svc.ValidateToken(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleAdministrator, claims.Role)
	assert.NotEmpty(t, claims.ID)

	// 无 Redis 时注销为空操作
	require.NoError(t, svc.Revoke(context.Background(), claims))
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	svc := NewJWTService("test-secret", "opsdash", time.Hour, nil)
	other := NewJWTService("other-secret", "opsdash", time.Hour, nil)
	wrongIssuer := NewJWTService("test-secret", "someone-else", time.Hour, nil)
	user := &User{ID: "user-1", Username: "alice", Role: RoleStandard}

	token, err := other.GenerateToken(user)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), token.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)

	token, err = wrongIssuer.GenerateToken(user)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), token.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.ValidateToken(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "", ExtractTokenFromBearer("abc"))
	assert.Equal(t, "", ExtractTokenFromBearer("Bearer "))
}
