// Package storetests provides common acceptance tests for grantkit.Store
// implementations. Run it from an implementation's test file:
//
//	func TestConformance(t *testing.T) {
//		storetests.Run(t, func() grantkit.Store {
//			return NewStore(...)
//		})
//	}
package storetests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dpup/grantkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthCode() *grantkit.AuthCode {
	return &grantkit.AuthCode{
		Code:        uuid.NewString(),
		ClientID:    "client-1",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      grantkit.NewScopeSet("read"),
		ExpiresAt:   time.Now().Add(10 * time.Minute).UTC(),
	}
}

func newPair(clientID, userID string) (*grantkit.AccessTokenRecord, *grantkit.RefreshTokenRecord) {
	access := uuid.NewString()
	refresh := uuid.NewString()
	return &grantkit.AccessTokenRecord{
			Token:        access,
			ClientID:     clientID,
			UserID:       userID,
			Scopes:       grantkit.NewScopeSet("read"),
			ExpiresAt:    time.Now().Add(time.Hour).UTC(),
			RefreshToken: refresh,
		}, &grantkit.RefreshTokenRecord{
			Token:       refresh,
			ClientID:    clientID,
			UserID:      userID,
			Scopes:      grantkit.NewScopeSet("read"),
			AccessToken: access,
		}
}

// Run executes the acceptance suite against a fresh store per subtest.
func Run(t *testing.T, newStore func() grantkit.Store) {
	ctx := context.Background()

	t.Run("AuthCodeRoundTrip", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))

		got, err := store.TakeAuthCode(ctx, code.Code)
		require.NoError(t, err)
		assert.Equal(t, code.ClientID, got.ClientID)
		assert.Equal(t, code.UserID, got.UserID)
		assert.Equal(t, code.RedirectURI, got.RedirectURI)
		assert.True(t, got.Scopes.Granted("read"))
		assert.False(t, got.Redeemed)
	})

	t.Run("DuplicateAuthCodeFails", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))
		assert.Error(t, store.PutAuthCode(ctx, code))
	})

	t.Run("TakeIsReadOnly", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))

		// Reading a code any number of times must not burn it: a failed
		// redemption attempt leaves it alive for a correct retry.
		for i := 0; i < 3; i++ {
			rec, err := store.TakeAuthCode(ctx, code.Code)
			require.NoError(t, err)
			assert.False(t, rec.Redeemed)
		}
	})

	t.Run("TakeAbsentCode", func(t *testing.T) {
		store := newStore()
		_, err := store.TakeAuthCode(ctx, "missing")
		assert.Error(t, err)
	})

	t.Run("ClaimFlipsFlagOnce", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))

		won, err := store.ClaimAuthCode(ctx, code.Code)
		require.NoError(t, err)
		assert.True(t, won)

		// The flag only flips through the claim, and only once.
		rec, err := store.TakeAuthCode(ctx, code.Code)
		require.NoError(t, err)
		assert.True(t, rec.Redeemed)

		won, err = store.ClaimAuthCode(ctx, code.Code)
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("ClaimAbsentCode", func(t *testing.T) {
		store := newStore()
		won, err := store.ClaimAuthCode(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("ConcurrentClaimSingleWinner", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))

		const workers = 16
		var wg sync.WaitGroup
		claimed := make([]bool, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				won, err := store.ClaimAuthCode(ctx, code.Code)
				claimed[i] = err == nil && won
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, won := range claimed {
			if won {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("MarkRedeemed", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))
		require.NoError(t, store.MarkAuthCodeRedeemed(ctx, code.Code, "access-1"))

		got, err := store.TakeAuthCode(ctx, code.Code)
		require.NoError(t, err)
		assert.True(t, got.Redeemed)
		assert.Equal(t, "access-1", got.RedeemedAccessToken)

		// Marking a deleted code is a no-op.
		require.NoError(t, store.DeleteAuthCode(ctx, code.Code))
		assert.NoError(t, store.MarkAuthCodeRedeemed(ctx, code.Code, "access-2"))
	})

	t.Run("DeleteAuthCode", func(t *testing.T) {
		store := newStore()
		code := newAuthCode()
		require.NoError(t, store.PutAuthCode(ctx, code))
		require.NoError(t, store.DeleteAuthCode(ctx, code.Code))

		_, err := store.TakeAuthCode(ctx, code.Code)
		assert.Error(t, err)
	})

	t.Run("TokenPairRoundTrip", func(t *testing.T) {
		store := newStore()
		access, refresh := newPair("client-1", "user-1")
		require.NoError(t, store.PutAccessToken(ctx, access, refresh))

		gotAccess, err := store.GetAccessToken(ctx, access.Token)
		require.NoError(t, err)
		assert.Equal(t, access.ClientID, gotAccess.ClientID)
		assert.Equal(t, access.RefreshToken, gotAccess.RefreshToken)
		assert.True(t, gotAccess.Scopes.Granted("read"))
		assert.WithinDuration(t, access.ExpiresAt, gotAccess.ExpiresAt, time.Second)

		gotRefresh, err := store.GetRefreshToken(ctx, refresh.Token)
		require.NoError(t, err)
		assert.Equal(t, refresh.AccessToken, gotRefresh.AccessToken)
		assert.Equal(t, refresh.UserID, gotRefresh.UserID)
	})

	t.Run("AbsentTokens", func(t *testing.T) {
		store := newStore()
		_, err := store.GetAccessToken(ctx, "missing")
		assert.Error(t, err)
		_, err = store.GetRefreshToken(ctx, "missing")
		assert.Error(t, err)
	})

	t.Run("RefreshEvictionPerClientUser", func(t *testing.T) {
		store := newStore()

		access1, refresh1 := newPair("client-1", "user-1")
		require.NoError(t, store.PutAccessToken(ctx, access1, refresh1))

		// Different user: untouched.
		access2, refresh2 := newPair("client-1", "user-2")
		require.NoError(t, store.PutAccessToken(ctx, access2, refresh2))

		// Same (client, user): evicts the first refresh token.
		access3, refresh3 := newPair("client-1", "user-1")
		require.NoError(t, store.PutAccessToken(ctx, access3, refresh3))

		_, err := store.GetRefreshToken(ctx, refresh1.Token)
		assert.Error(t, err)
		_, err = store.GetRefreshToken(ctx, refresh2.Token)
		assert.NoError(t, err)
		_, err = store.GetRefreshToken(ctx, refresh3.Token)
		assert.NoError(t, err)
	})

	t.Run("AccessOnlyPut", func(t *testing.T) {
		store := newStore()
		access, _ := newPair("client-1", "user-1")
		access.RefreshToken = ""
		require.NoError(t, store.PutAccessToken(ctx, access, nil))

		got, err := store.GetAccessToken(ctx, access.Token)
		require.NoError(t, err)
		assert.Empty(t, got.RefreshToken)
	})

	t.Run("DeleteTokens", func(t *testing.T) {
		store := newStore()
		access, refresh := newPair("client-1", "user-1")
		require.NoError(t, store.PutAccessToken(ctx, access, refresh))

		require.NoError(t, store.DeleteAccessToken(ctx, access.Token))
		_, err := store.GetAccessToken(ctx, access.Token)
		assert.Error(t, err)

		require.NoError(t, store.DeleteRefreshToken(ctx, refresh.Token))
		_, err = store.GetRefreshToken(ctx, refresh.Token)
		assert.Error(t, err)

		// Deletes are idempotent.
		assert.NoError(t, store.DeleteAccessToken(ctx, access.Token))
		assert.NoError(t, store.DeleteRefreshToken(ctx, refresh.Token))
	})
}
