package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueServerTokenRoundTrips(t *testing.T) {
	s := &Service{jwtSecret: []byte("test-secret"), jwtTTL: time.Hour}

	raw, err := s.IssueServerToken(42, 7)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	var claims serverClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.ServerID)
	assert.Equal(t, uint64(7), claims.PluginVersionID)
	assert.Equal(t, "server:42", claims.Subject)
}

func TestIssueServerTokenRejectedByWrongSecret(t *testing.T) {
	s := &Service{jwtSecret: []byte("test-secret"), jwtTTL: time.Hour}

	raw, err := s.IssueServerToken(1, 1)
	require.NoError(t, err)

	var claims serverClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (interface{}, error) {
		return []byte("wrong-secret"), nil
	})
	require.Error(t, err)
}

func TestRequireRejectsMissingPermission(t *testing.T) {
	id := Identity{}
	err := Require(id, 1)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRequireServerOwnerAllowsOwningServer(t *testing.T) {
	serverID := uint64(7)
	id := Identity{ServerID: &serverID}
	require.NoError(t, RequireServerOwner(id, 7, 1<<0))
}

func TestRequireServerOwnerRejectsOtherServerWithoutAdmin(t *testing.T) {
	serverID := uint64(7)
	id := Identity{ServerID: &serverID}
	err := RequireServerOwner(id, 8, 1<<0)
	require.ErrorIs(t, err, ErrForbidden)
}
