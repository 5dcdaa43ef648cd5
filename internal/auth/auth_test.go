package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/models"
)

func TestRequireOwner(t *testing.T) {
	p := &models.Project{ID: "p-1", UserID: "alice"}

	require.NoError(t, RequireOwner(User("alice"), p))

	err := RequireOwner(User("bob"), p)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	err = RequireOwner(Caller{}, p)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}

func TestRequireAdmin(t *testing.T) {
	require.NoError(t, RequireAdmin(Caller{UserID: "root", Admin: true}))
	assert.ErrorIs(t, RequireAdmin(User("alice")), apperr.ErrUnauthorized)
	assert.ErrorIs(t, RequireAdmin(Caller{Admin: true}), apperr.ErrUnauthenticated)
}

func TestTokenAuthenticator(t *testing.T) {
	a := NewTokenAuthenticator(map[string]string{"tok-alice": "alice", "tok-root": "root"}, []string{"root"})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer tok-alice")
	assert.Equal(t, User("alice"), a.Authenticate(r))

	r.Header.Set("Authorization", "Bearer tok-root")
	assert.Equal(t, Caller{UserID: "root", Admin: true}, a.Authenticate(r))

	r.Header.Set("Authorization", "Bearer wrong")
	assert.False(t, a.Authenticate(r).Authenticated())

	r.Header.Del("Authorization")
	assert.False(t, a.Authenticate(r).Authenticated())
}
