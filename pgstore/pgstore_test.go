package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dpup/grantkit"
	"github.com/dpup/grantkit/errors"
	"github.com/dpup/grantkit/storetests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConformance runs the shared acceptance suite against a live
// database. Set PG_TEST_DSN to enable.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PostgreSQL tests skipped. Set PG_TEST_DSN env var to enable.")
	}

	storetests.Run(t, func() grantkit.Store {
		db, err := sql.Open("postgres", dsn)
		require.NoError(t, err)
		require.NoError(t, db.Ping())

		for _, table := range []string{"auth_codes", "access_tokens", "refresh_tokens"} {
			_, err := db.Exec("DROP TABLE IF EXISTS grantkit_" + table)
			require.NoError(t, err)
		}

		store, err := FromDB(db)
		require.NoError(t, err)
		return store
	})
}

func newMockStore(t *testing.T) (grantkit.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := FromDB(db, WithAutoCreateTables(false))
	require.NoError(t, err)
	return store, mock
}

func TestPutAuthCode(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Now().Add(10 * time.Minute)

	mock.ExpectExec(`INSERT INTO grantkit_auth_codes`).
		WithArgs("code-1", "client-1", "user-1", "https://cb", []byte(`{"read":true}`), expires.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PutAuthCode(context.Background(), &grantkit.AuthCode{
		Code:        "code-1",
		ClientID:    "client-1",
		UserID:      "user-1",
		RedirectURI: "https://cb",
		Scopes:      grantkit.NewScopeSet("read"),
		ExpiresAt:   expires,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTakeAuthCodeReadsWithoutMutating(t *testing.T) {
	store, mock := newMockStore(t)
	scopes, _ := json.Marshal(grantkit.NewScopeSet("read"))
	expires := time.Now().Add(10 * time.Minute).Unix()

	mock.ExpectQuery(`SELECT client_id, user_id, redirect_uri, scopes, expires_at, redeemed, redeemed_access_token`).
		WithArgs("code-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"client_id", "user_id", "redirect_uri", "scopes", "expires_at",
			"redeemed", "redeemed_access_token",
		}).AddRow("client-1", "user-1", "https://cb", scopes, expires, false, ""))

	rec, err := store.TakeAuthCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.False(t, rec.Redeemed)
	assert.Equal(t, "client-1", rec.ClientID)
	assert.True(t, rec.Scopes.Granted("read"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTakeAuthCodeAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT client_id, user_id, redirect_uri, scopes, expires_at, redeemed, redeemed_access_token`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.TakeAuthCode(context.Background(), "missing")
	assert.True(t, errors.Is(err, grantkit.ErrInvalidGrant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimAuthCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE grantkit_auth_codes SET redeemed = TRUE WHERE code = \$1 AND redeemed = FALSE`).
		WithArgs("code-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE grantkit_auth_codes SET redeemed = TRUE WHERE code = \$1 AND redeemed = FALSE`).
		WithArgs("code-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := store.ClaimAuthCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.ClaimAuthCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutAccessTokenEvictsAndInserts(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO grantkit_access_tokens`).
		WithArgs("access-1", "client-1", "user-1", []byte(`{"read":true}`),
			expires.Unix(), "refresh-1", "code-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM grantkit_refresh_tokens WHERE client_id = \$1 AND user_id = \$2 AND token <> \$3`).
		WithArgs("client-1", "user-1", "refresh-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO grantkit_refresh_tokens`).
		WithArgs("refresh-1", "client-1", "user-1", []byte(`{"read":true}`),
			"access-1", "code-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.PutAccessToken(context.Background(),
		&grantkit.AccessTokenRecord{
			Token:        "access-1",
			ClientID:     "client-1",
			UserID:       "user-1",
			Scopes:       grantkit.NewScopeSet("read"),
			ExpiresAt:    expires,
			RefreshToken: "refresh-1",
			AuthCode:     "code-1",
		},
		&grantkit.RefreshTokenRecord{
			Token:       "refresh-1",
			ClientID:    "client-1",
			UserID:      "user-1",
			Scopes:      grantkit.NewScopeSet("read"),
			AccessToken: "access-1",
			AuthCode:    "code-1",
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccessTokenAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT client_id, user_id, scopes, expires_at, refresh_token, auth_code`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetAccessToken(context.Background(), "missing")
	assert.True(t, errors.Is(err, grantkit.ErrInvalidGrant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTokens(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM grantkit_access_tokens WHERE token = \$1`).
		WithArgs("access-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM grantkit_refresh_tokens WHERE token = \$1`).
		WithArgs("refresh-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteAccessToken(context.Background(), "access-1"))
	require.NoError(t, store.DeleteRefreshToken(context.Background(), "refresh-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
