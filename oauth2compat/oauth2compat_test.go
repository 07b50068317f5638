package oauth2compat

import (
	"context"
	"testing"
	"time"

	"github.com/dpup/grantkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() grantkit.ClientRegistry {
	return grantkit.NewClientRegistry(grantkit.Client{
		ID:           "test-client",
		Secret:       "secret",
		RedirectURIs: []string{"http://localhost/cb", "http://localhost/alt"},
		Scopes:       grantkit.NewScopeSet("read", "write"),
	})
}

func TestClientStore(t *testing.T) {
	store := NewClientStore(testRegistry())
	ctx := context.Background()

	info, err := store.GetByID(ctx, "test-client")
	require.NoError(t, err)
	assert.Equal(t, "test-client", info.GetID())
	assert.Equal(t, "secret", info.GetSecret())
	assert.Equal(t, "http://localhost/cb\nhttp://localhost/alt", info.GetDomain())
	assert.False(t, info.IsPublic())

	_, err = store.GetByID(ctx, "missing")
	assert.Error(t, err)
}

func TestTokenStoreCodeLifecycle(t *testing.T) {
	store := NewTokenStore(grantkit.NewMemoryStore())
	ctx := context.Background()

	seed := &tokenInfo{
		clientID:      "test-client",
		userID:        "user-1",
		scope:         "read",
		code:          "code-1",
		codeCreateAt:  time.Now(),
		codeExpiresIn: 10 * time.Minute,
		redirectURI:   "http://localhost/cb",
	}
	require.NoError(t, store.Create(ctx, seed))

	got, err := store.GetByCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "test-client", got.GetClientID())
	assert.Equal(t, "user-1", got.GetUserID())
	assert.Equal(t, "read", got.GetScope())
	assert.Equal(t, "http://localhost/cb", got.GetRedirectURI())
	assert.Greater(t, got.GetCodeExpiresIn(), 9*time.Minute)

	require.NoError(t, store.RemoveByCode(ctx, "code-1"))
	_, err = store.GetByCode(ctx, "code-1")
	assert.Error(t, err)
}

func TestTokenStorePairLifecycle(t *testing.T) {
	store := NewTokenStore(grantkit.NewMemoryStore())
	ctx := context.Background()

	seed := &tokenInfo{
		clientID:        "test-client",
		userID:          "user-1",
		scope:           "read write",
		access:          "access-1",
		accessCreateAt:  time.Now(),
		accessExpiresIn: time.Hour,
		refresh:         "refresh-1",
	}
	require.NoError(t, store.Create(ctx, seed))

	byAccess, err := store.GetByAccess(ctx, "access-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", byAccess.GetRefresh())
	assert.Equal(t, "read write", byAccess.GetScope())

	byRefresh, err := store.GetByRefresh(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", byRefresh.GetAccess())

	require.NoError(t, store.RemoveByAccess(ctx, "access-1"))
	_, err = store.GetByAccess(ctx, "access-1")
	assert.Error(t, err)

	require.NoError(t, store.RemoveByRefresh(ctx, "refresh-1"))
	_, err = store.GetByRefresh(ctx, "refresh-1")
	assert.Error(t, err)
}

func TestTokenStoreAccessOnly(t *testing.T) {
	store := NewTokenStore(grantkit.NewMemoryStore())
	ctx := context.Background()

	seed := &tokenInfo{
		clientID:        "test-client",
		access:          "access-1",
		accessCreateAt:  time.Now(),
		accessExpiresIn: time.Hour,
	}
	require.NoError(t, store.Create(ctx, seed))

	got, err := store.GetByAccess(ctx, "access-1")
	require.NoError(t, err)
	assert.Empty(t, got.GetRefresh())
}
