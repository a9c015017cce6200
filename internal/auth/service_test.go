package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"chat-relay/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour})
}

func TestIdentity(t *testing.T) {
	req := require.New(t)

	anon := Anonymous()
	req.False(anon.IsAuthenticated())
	req.Equal("Anonymous", anon.DisplayName())

	alice := Identity{UserID: 7, Username: "alice"}
	req.True(alice.IsAuthenticated())
	req.Equal("alice", alice.DisplayName())
	req.Equal(int64(7), alice.Author().UserID)
	req.Equal("alice", alice.Author().Username)
}

func TestService_TokenRoundTrip(t *testing.T) {
	req := require.New(t)
	svc := newTestService()

	token, err := svc.IssueToken(7, "alice")
	req.NoError(err)

	claims, err := svc.ValidateToken(token)
	req.NoError(err)
	req.Equal(int64(7), claims.UserID)
	req.Equal("alice", claims.Username)

	_, err = svc.IssueToken(0, "nobody")
	req.Error(err)
}

func TestService_ValidateTokenRejects(t *testing.T) {
	svc := newTestService()

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(config.JWTConfig{Secret: "other", ExpiresIn: time.Hour})
		token, err := other.IssueToken(1, "mallory")
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewService(config.JWTConfig{Secret: "test-secret", ExpiresIn: -time.Minute})
		token, err := expired.IssueToken(1, "alice")
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user claims", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestService_IdentityFromRequest(t *testing.T) {
	svc := newTestService()
	token, err := svc.IssueToken(3, "bob")
	require.NoError(t, err)

	t.Run("no token is anonymous", func(t *testing.T) {
		id, err := svc.IdentityFromRequest(httptest.NewRequest("GET", "/ws/lobby", nil))
		require.NoError(t, err)
		require.False(t, id.IsAuthenticated())
	})

	t.Run("query token", func(t *testing.T) {
		id, err := svc.IdentityFromRequest(httptest.NewRequest("GET", "/ws/lobby?token="+token, nil))
		require.NoError(t, err)
		require.Equal(t, Identity{UserID: 3, Username: "bob"}, id)
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/lobby", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		id, err := svc.IdentityFromRequest(r)
		require.NoError(t, err)
		require.Equal(t, "bob", id.DisplayName())
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/lobby", nil)
		r.Header.Set("Authorization", "Basic abc")
		_, err := svc.IdentityFromRequest(r)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		_, err := svc.IdentityFromRequest(httptest.NewRequest("GET", "/ws/lobby?token=bogus", nil))
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
