package grantkit

import (
	"context"
	"time"
)

// AuthCode is the stored record of an issued authorization code.
type AuthCode struct {
	Code        string
	ClientID    string
	UserID      string
	RedirectURI string
	Scopes      ScopeSet
	ExpiresAt   time.Time

	// Redeemed is set the moment the code is claimed for redemption. A
	// code is single-use: observing Redeemed on a later attempt triggers
	// cascaded revocation.
	Redeemed bool

	// RedeemedAccessToken is the access token issued from this code, set
	// when the token pair is stored.
	RedeemedAccessToken string
}

// AccessTokenRecord is the stored record of an issued access token.
type AccessTokenRecord struct {
	Token     string
	ClientID  string
	UserID    string
	Scopes    ScopeSet
	ExpiresAt time.Time

	// RefreshToken is the refresh token issued alongside this one.
	RefreshToken string

	// AuthCode is the originating authorization code, carried through
	// refresh rotations.
	AuthCode string
}

// RefreshTokenRecord is the stored record of an issued refresh token.
// Refresh tokens do not self-expire; they die when rotated.
type RefreshTokenRecord struct {
	Token    string
	ClientID string
	UserID   string
	Scopes   ScopeSet

	// AccessToken is the currently paired access token.
	AccessToken string

	// AuthCode is the originating authorization code.
	AuthCode string
}

// Store owns every token record; the engine borrows records through these
// operations and never caches. Absent records are reported as errors
// marking ErrInvalidGrant.
//
// Mutating operations must be atomic with respect to other operations on
// the same key: the in-memory store uses a single mutex, the SQL stores
// use transactions, and host implementations must provide the same
// guarantee.
//
// When the engine runs in signed mode the store is bypassed entirely.
type Store interface {
	// PutAuthCode inserts a new authorization code record. Duplicates are
	// an error, though unreachable in practice given token entropy.
	PutAuthCode(ctx context.Context, code *AuthCode) error

	// TakeAuthCode atomically reads a code record. It never mutates the
	// record: a failed redemption attempt must leave the code alive for a
	// correct retry.
	TakeAuthCode(ctx context.Context, code string) (*AuthCode, error)

	// ClaimAuthCode flips the code's Redeemed flag if and only if it was
	// unset, as a single atomic compare-and-swap, and reports whether
	// this caller won the claim. The engine invokes it only after the
	// redemption request has fully validated, so the flag flips on
	// genuine success, never on a rejected attempt. Of two concurrent
	// redemptions at most one wins. An absent code is simply not won.
	ClaimAuthCode(ctx context.Context, code string) (bool, error)

	// MarkAuthCodeRedeemed records the access token produced from a code.
	// Marking a code that has since been deleted is a no-op.
	MarkAuthCodeRedeemed(ctx context.Context, code, accessToken string) error

	// DeleteAuthCode removes a code record, as happens on replay detection
	// and on expiry.
	DeleteAuthCode(ctx context.Context, code string) error

	// PutAccessToken inserts an access/refresh token pair, evicting any
	// prior refresh token held by the same (client, user) pair. A nil
	// refresh inserts the access token alone and evicts nothing.
	PutAccessToken(ctx context.Context, access *AccessTokenRecord, refresh *RefreshTokenRecord) error

	// GetAccessToken returns the record for an access token.
	GetAccessToken(ctx context.Context, token string) (*AccessTokenRecord, error)

	// GetRefreshToken returns the record for a refresh token.
	GetRefreshToken(ctx context.Context, token string) (*RefreshTokenRecord, error)

	// DeleteAccessToken removes an access token record.
	DeleteAccessToken(ctx context.Context, token string) error

	// DeleteRefreshToken removes a refresh token record.
	DeleteRefreshToken(ctx context.Context, token string) error
}
