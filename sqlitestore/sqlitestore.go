// Package sqlitestore provides a SQLite implementation of grantkit.Store.
// Tables are created optimistically on initialization.
//
// Examples:
//
//	store := sqlitestore.New("file:grants.db")
//
//	store := sqlitestore.New(":memory:", sqlitestore.WithPrefix("oauth_"))
//
// The redemption claim is a single conditional UPDATE and the refresh
// eviction runs inside a transaction, which satisfies the atomicity
// contract hook-based stores must provide.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dpup/grantkit"
	"github.com/dpup/grantkit/errors"
	"github.com/mattn/go-sqlite3"
)

// Option is a functional option for configuring the store.
type Option func(*store)

// WithPrefix overrides the default prefix for table names.
func WithPrefix(prefix string) Option {
	return func(s *store) {
		s.prefix = prefix
	}
}

// New returns a store that provides sqlite backed storage. Any errors
// during initialization are considered non-recoverable and will panic.
func New(conn string, opts ...Option) grantkit.Store {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		panic("failed to open sqlite connection: " + err.Error())
	}
	// A single connection sidesteps SQLite write-lock contention and keeps
	// :memory: databases from being one-per-connection.
	db.SetMaxOpenConns(1)
	s := &store{db: db, prefix: "grantkit_"}
	for _, opt := range opts {
		opt(s)
	}
	s.ensureTables()
	return s
}

type store struct {
	db     *sql.DB
	prefix string
}

//nolint:gosec // SQL string concat used to parameterize table names.
func (s *store) ensureTables() {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.prefix + `auth_codes (
			code TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			redirect_uri TEXT NOT NULL DEFAULT '',
			scopes TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			redeemed INTEGER NOT NULL DEFAULT 0,
			redeemed_access_token TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.prefix + `access_tokens (
			token TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			scopes TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			auth_code TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.prefix + `refresh_tokens (
			token TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			scopes TEXT NOT NULL,
			access_token TEXT NOT NULL DEFAULT '',
			auth_code TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.prefix + `refresh_by_owner
			ON ` + s.prefix + `refresh_tokens (client_id, user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			panic("failed to initialize sqlite tables: " + err.Error())
		}
	}
}

func (s *store) PutAuthCode(ctx context.Context, code *grantkit.AuthCode) error {
	scopes, err := json.Marshal(code.Scopes)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.prefix+`auth_codes
			(code, client_id, user_id, redirect_uri, scopes, expires_at, redeemed, redeemed_access_token)
			VALUES (?, ?, ?, ?, ?, ?, 0, '')`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, scopes,
		code.ExpiresAt.Unix())
	return translateError(err)
}

func (s *store) TakeAuthCode(ctx context.Context, code string) (*grantkit.AuthCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT client_id, user_id, redirect_uri, scopes, expires_at, redeemed, redeemed_access_token
			FROM `+s.prefix+`auth_codes WHERE code = ?`,
		code)

	rec := &grantkit.AuthCode{Code: code}
	var scopes []byte
	var expiresAt int64
	err := row.Scan(&rec.ClientID, &rec.UserID, &rec.RedirectURI, &scopes,
		&expiresAt, &rec.Redeemed, &rec.RedeemedAccessToken)
	if err != nil {
		return nil, translateError(err)
	}
	if err := json.Unmarshal(scopes, &rec.Scopes); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0)
	return rec, nil
}

func (s *store) ClaimAuthCode(ctx context.Context, code string) (bool, error) {
	// The conditional update is the compare-and-swap: the row count says
	// whether this caller flipped the flag.
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+s.prefix+`auth_codes SET redeemed = 1 WHERE code = ? AND redeemed = 0`,
		code)
	if err != nil {
		return false, translateError(err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, 0)
	}
	return claimed == 1, nil
}

func (s *store) MarkAuthCodeRedeemed(ctx context.Context, code, accessToken string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+s.prefix+`auth_codes SET redeemed = 1, redeemed_access_token = ? WHERE code = ?`,
		accessToken, code)
	return translateError(err)
}

func (s *store) DeleteAuthCode(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.prefix+`auth_codes WHERE code = ?`, code)
	return translateError(err)
}

func (s *store) PutAccessToken(ctx context.Context, access *grantkit.AccessTokenRecord, refresh *grantkit.RefreshTokenRecord) error {
	accessScopes, err := json.Marshal(access.Scopes)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+s.prefix+`access_tokens
			(token, client_id, user_id, scopes, expires_at, refresh_token, auth_code)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		access.Token, access.ClientID, access.UserID, accessScopes,
		access.ExpiresAt.Unix(), access.RefreshToken, access.AuthCode)
	if err != nil {
		return translateError(err)
	}

	if refresh != nil {
		refreshScopes, err := json.Marshal(refresh.Scopes)
		if err != nil {
			return errors.Wrap(err, 0)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM `+s.prefix+`refresh_tokens WHERE client_id = ? AND user_id = ? AND token <> ?`,
			refresh.ClientID, refresh.UserID, refresh.Token)
		if err != nil {
			return translateError(err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+s.prefix+`refresh_tokens
				(token, client_id, user_id, scopes, access_token, auth_code)
				VALUES (?, ?, ?, ?, ?, ?)`,
			refresh.Token, refresh.ClientID, refresh.UserID, refreshScopes,
			refresh.AccessToken, refresh.AuthCode)
		if err != nil {
			return translateError(err)
		}
	}

	return translateError(tx.Commit())
}

func (s *store) GetAccessToken(ctx context.Context, token string) (*grantkit.AccessTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT client_id, user_id, scopes, expires_at, refresh_token, auth_code
			FROM `+s.prefix+`access_tokens WHERE token = ?`,
		token)

	rec := &grantkit.AccessTokenRecord{Token: token}
	var scopes []byte
	var expiresAt int64
	err := row.Scan(&rec.ClientID, &rec.UserID, &scopes, &expiresAt,
		&rec.RefreshToken, &rec.AuthCode)
	if err != nil {
		return nil, translateError(err)
	}
	if err := json.Unmarshal(scopes, &rec.Scopes); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0)
	return rec, nil
}

func (s *store) GetRefreshToken(ctx context.Context, token string) (*grantkit.RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT client_id, user_id, scopes, access_token, auth_code
			FROM `+s.prefix+`refresh_tokens WHERE token = ?`,
		token)

	rec := &grantkit.RefreshTokenRecord{Token: token}
	var scopes []byte
	err := row.Scan(&rec.ClientID, &rec.UserID, &scopes, &rec.AccessToken, &rec.AuthCode)
	if err != nil {
		return nil, translateError(err)
	}
	if err := json.Unmarshal(scopes, &rec.Scopes); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return rec, nil
}

func (s *store) DeleteAccessToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.prefix+`access_tokens WHERE token = ?`, token)
	return translateError(err)
}

func (s *store) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.prefix+`refresh_tokens WHERE token = ?`, token)
	return translateError(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Mark(grantkit.ErrInvalidGrant, 1)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return errors.WrapPrefix(err, "record already exists", 1)
	}
	return errors.Wrap(err, 1)
}
