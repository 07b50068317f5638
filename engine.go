package grantkit

import (
	"context"
	"strings"
	"time"

	"github.com/dpup/grantkit/errors"
	"github.com/dpup/grantkit/logging"
)

// Engine is the grant state machine. It is reentrant: concurrent grant
// flows share the immutable client registry and serialize on the Store's
// atomic operations. Construct one with NewBuilder.
type Engine struct {
	registry ClientRegistry
	store    Store
	codec    Codec
	signed   *signedCodec // nil in opaque mode
	secrets  SecretVerifier
	owner    ResourceOwner
	denylist Denylist

	authCodeTTL    time.Duration
	accessTokenTTL time.Duration
	strictRedirect bool

	now    func() time.Time
	logger logging.Logger
}

// AuthCodeRequest describes an authorization code to issue.
type AuthCodeRequest struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scopes      []string
}

// RedeemRequest presents an authorization code for redemption.
type RedeemRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
}

// CodeGrant is the outcome of a successful code verification.
type CodeGrant struct {
	ClientID string
	UserID   string
	Scopes   ScopeSet
}

// StoreTokensRequest records a newly issued access/refresh pair. Exactly
// one of AuthCode and OldRefreshToken should be set: AuthCode for the
// initial exchange, OldRefreshToken for a rotation.
type StoreTokensRequest struct {
	ClientID     string
	AccessToken  string
	RefreshToken string
	UserID       string
	Scopes       []string

	// AuthCode is the code this pair was exchanged for.
	AuthCode string

	// OldRefreshToken is the token being rotated away. Its user and code
	// lineage carry forward, as do its scopes when Scopes is empty; its
	// paired access token is revoked.
	OldRefreshToken string
}

// TokenOptions carries the descriptor fields for Token.
type TokenOptions struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scopes      []string
}

// TokenInfo is the outcome of a successful token verification. In signed
// mode Claims holds the full decoded claim set.
type TokenInfo struct {
	Kind      TokenKind
	ClientID  string
	UserID    string
	Scopes    ScopeSet
	ExpiresAt time.Time
	Claims    *SignedClaims
}

// TokenPair is an issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scopes       []string
	UserID       string
}

// RefreshRequest presents a refresh token for rotation.
type RefreshRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scopes       []string
}

// Signed reports whether the engine issues self-contained signed tokens.
func (e *Engine) Signed() bool {
	return e.signed != nil
}

// ResourceOwner returns the bridge supplied at construction, for hosts
// that drive the hooks themselves.
func (e *Engine) ResourceOwner() ResourceOwner {
	return e.owner
}

func (e *Engine) log(ctx context.Context) logging.Logger {
	return logging.FromContextOr(ctx, e.logger)
}

// VerifyClient checks that a client exists and may use the requested
// scopes. Failures, in precedence order: unknown client is
// ErrUnauthorizedClient; a scope missing from the client's scope map is
// ErrInvalidScope; a scope present but disabled is ErrAccessDenied. The
// first failing scope, in request order, determines the result.
func (e *Engine) VerifyClient(ctx context.Context, clientID string, scopes []string) error {
	client, err := e.registry.Lookup(ctx, clientID)
	if err != nil {
		return errors.Mark(ErrUnauthorizedClient, 0)
	}
	for _, s := range scopes {
		if !client.Scopes.Known(s) {
			return errors.Mark(ErrInvalidScope, 0)
		}
		if !client.Scopes.Granted(s) {
			return errors.Mark(ErrAccessDenied, 0)
		}
	}
	return nil
}

// Token encodes a new token of the given kind. Authorization codes and
// access tokens pick up the configured TTLs; refresh tokens never
// self-expire.
func (e *Engine) Token(ctx context.Context, kind TokenKind, opts TokenOptions) (string, error) {
	desc := TokenDescriptor{
		Kind:     kind,
		ClientID: opts.ClientID,
		UserID:   opts.UserID,
		Scopes:   opts.Scopes,
		Audience: opts.RedirectURI,
	}
	switch kind {
	case KindAuth:
		desc.TTL = e.authCodeTTL
	case KindAccess:
		desc.TTL = e.accessTokenTTL
	case KindRefresh:
		// No TTL.
	default:
		return "", errors.Errorf("grantkit: unknown token kind %d", kind)
	}
	return e.codec.Encode(desc)
}

// StoreAuthCode persists an issued authorization code. In signed mode the
// token string is its own record and this is a no-op.
func (e *Engine) StoreAuthCode(ctx context.Context, code string, req AuthCodeRequest) error {
	if e.signed != nil {
		return nil
	}
	return e.store.PutAuthCode(ctx, &AuthCode{
		Code:        code,
		ClientID:    req.ClientID,
		UserID:      req.UserID,
		RedirectURI: req.RedirectURI,
		Scopes:      NewScopeSet(req.Scopes...),
		ExpiresAt:   e.now().Add(e.authCodeTTL),
	})
}

// IssueAuthCode encodes and stores a new authorization code. The caller
// is responsible for having established login and consent first; see
// Authorize for the variant that consults the resource-owner bridge.
func (e *Engine) IssueAuthCode(ctx context.Context, req AuthCodeRequest) (string, error) {
	code, err := e.Token(ctx, KindAuth, TokenOptions{
		ClientID:    req.ClientID,
		UserID:      req.UserID,
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scopes,
	})
	if err != nil {
		return "", err
	}
	if err := e.StoreAuthCode(ctx, code, req); err != nil {
		return "", err
	}
	e.log(ctx).Debugw("issued authorization code", "client", req.ClientID, "user", req.UserID)
	return code, nil
}

// Authorize runs the full host-facing authorization step: consults the
// resource-owner bridge, verifies the client and scopes, and issues a
// code. A false return from either hook means the host has taken over
// (login or consent redirect) and surfaces as ErrAccessDenied.
func (e *Engine) Authorize(ctx context.Context, req AuthCodeRequest) (string, error) {
	if !e.owner.LoginResourceOwner(ctx) {
		return "", errors.Mark(ErrAccessDenied, 0)
	}
	if !e.owner.ConfirmByResourceOwner(ctx, req.ClientID, req.Scopes) {
		return "", errors.Mark(ErrAccessDenied, 0)
	}
	if err := e.VerifyClient(ctx, req.ClientID, req.Scopes); err != nil {
		return "", err
	}
	return e.IssueAuthCode(ctx, req)
}

// VerifyAuthCode redeems an authorization code. Codes are single-use: a
// second redemption fails and revokes any access token issued from the
// first, and all verification failures collapse into ErrInvalidGrant so
// the response doesn't distinguish absence, expiry, a bad secret, or a
// bad redirect.
func (e *Engine) VerifyAuthCode(ctx context.Context, req RedeemRequest) (*CodeGrant, error) {
	if e.signed != nil {
		return e.verifyAuthCodeSigned(ctx, req)
	}

	rec, err := e.store.TakeAuthCode(ctx, req.Code)
	if err != nil {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	if rec.Redeemed {
		// Replay. Cascade: the code and anything issued from it die.
		if rec.RedeemedAccessToken != "" {
			_ = e.store.DeleteAccessToken(ctx, rec.RedeemedAccessToken)
		}
		_ = e.store.DeleteAuthCode(ctx, req.Code)
		e.log(ctx).Warnw("authorization code replayed, revoked issued tokens",
			"client", rec.ClientID)
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	// A rejected attempt leaves the record untouched, so the legitimate
	// client can still retry with correct credentials. The exception is an
	// expired code, which is deleted.
	client, lookupErr := e.registry.Lookup(ctx, req.ClientID)
	switch {
	case lookupErr != nil,
		rec.ClientID != req.ClientID:
		return nil, errors.Mark(ErrInvalidGrant, 0)
	case !e.secrets.Verify(client, req.ClientSecret):
		return nil, errors.Mark(ErrInvalidGrant, 0)
	case !e.redirectOK(rec.RedirectURI, req.RedirectURI):
		return nil, errors.Mark(ErrInvalidGrant, 0)
	case !rec.ExpiresAt.After(e.now()):
		_ = e.store.DeleteAuthCode(ctx, req.Code)
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	// Only a fully validated request claims the code. The compare-and-swap
	// is what keeps concurrent redemptions down to a single winner; a
	// loser observed the record before the winner's claim landed.
	claimed, err := e.store.ClaimAuthCode(ctx, req.Code)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	if !claimed {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	return &CodeGrant{ClientID: rec.ClientID, UserID: rec.UserID, Scopes: rec.Scopes}, nil
}

func (e *Engine) verifyAuthCodeSigned(ctx context.Context, req RedeemRequest) (*CodeGrant, error) {
	claims, err := e.signed.Decode(req.Code)
	if err != nil {
		return nil, err
	}
	if claims.TokenKind() != KindAuth || claims.ClientID != req.ClientID {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	if len(claims.Audience) > 0 && claims.Audience[0] != req.RedirectURI {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	client, err := e.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, errors.Mark(ErrUnauthorizedClient, 0)
	}
	if !e.secrets.Verify(client, req.ClientSecret) {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	if err := e.checkDenylist(ctx, claims.ID); err != nil {
		return nil, err
	}

	// No replay detection here: the token is its own record and the store
	// is never consulted. Hosts that need single-use codes in signed mode
	// layer a denylist on top.
	return &CodeGrant{
		ClientID: claims.ClientID,
		UserID:   claims.UserID,
		Scopes:   NewScopeSet(claims.Scopes...),
	}, nil
}

// redirectOK applies the configured redirect validation. The default
// preserves the lax legacy behavior: the check is skipped when the
// redemption request carries no redirect URI. Strict mode always requires
// equality.
func (e *Engine) redirectOK(stored, presented string) bool {
	if e.strictRedirect {
		return stored == presented
	}
	if presented == "" {
		return true
	}
	return stored == presented
}

// StoreAccessToken persists a newly issued token pair. With AuthCode set
// it records the initial exchange and marks the code redeemed; with
// OldRefreshToken set it rotates, carrying forward the old token's user
// and code lineage (and its scopes when none are given) and revoking the
// previous pair. In both
// modes any other refresh token held by the (client, user) pair is
// evicted. In signed mode this is a no-op.
func (e *Engine) StoreAccessToken(ctx context.Context, req StoreTokensRequest) error {
	if e.signed != nil {
		return nil
	}

	scopes := req.Scopes
	userID := req.UserID
	authCode := req.AuthCode

	rotated := req.OldRefreshToken != ""
	if rotated {
		old, err := e.store.GetRefreshToken(ctx, req.OldRefreshToken)
		if err != nil {
			return errors.Mark(ErrInvalidGrant, 0)
		}
		if len(scopes) == 0 {
			scopes = old.Scopes.List()
		}
		userID = old.UserID
		authCode = old.AuthCode
		if old.AccessToken != "" {
			_ = e.store.DeleteAccessToken(ctx, old.AccessToken)
		}
		if err := e.store.DeleteRefreshToken(ctx, old.Token); err != nil {
			return err
		}
	}

	scopeSet := NewScopeSet(scopes...)
	access := &AccessTokenRecord{
		Token:        req.AccessToken,
		ClientID:     req.ClientID,
		UserID:       userID,
		Scopes:       scopeSet,
		ExpiresAt:    e.now().Add(e.accessTokenTTL),
		RefreshToken: req.RefreshToken,
		AuthCode:     authCode,
	}
	refresh := &RefreshTokenRecord{
		Token:       req.RefreshToken,
		ClientID:    req.ClientID,
		UserID:      userID,
		Scopes:      scopeSet,
		AccessToken: req.AccessToken,
		AuthCode:    authCode,
	}
	if err := e.store.PutAccessToken(ctx, access, refresh); err != nil {
		return err
	}

	if !rotated && authCode != "" {
		return e.store.MarkAuthCodeRedeemed(ctx, authCode, req.AccessToken)
	}
	return nil
}

// VerifyAccessToken checks an access token and, when scopes are given,
// that every one of them was granted to the token.
func (e *Engine) VerifyAccessToken(ctx context.Context, token string, scopes []string) (*TokenInfo, error) {
	return e.verifyToken(ctx, token, scopes, false)
}

// VerifyRefreshToken checks a refresh token, which never self-expires.
func (e *Engine) VerifyRefreshToken(ctx context.Context, token string, scopes []string) (*TokenInfo, error) {
	return e.verifyToken(ctx, token, scopes, true)
}

func (e *Engine) verifyToken(ctx context.Context, token string, scopes []string, isRefresh bool) (*TokenInfo, error) {
	if e.signed != nil {
		claims, err := e.signed.Decode(token)
		if err != nil {
			return nil, err
		}
		kind := claims.TokenKind()
		if kind != KindAccess && !(isRefresh && kind == KindRefresh) {
			return nil, errors.Mark(ErrInvalidGrant, 0)
		}
		if err := e.checkDenylist(ctx, claims.ID); err != nil {
			return nil, err
		}
		for _, s := range scopes {
			if !claims.HasScope(s) {
				return nil, errors.Mark(ErrInvalidGrant, 0)
			}
		}
		info := &TokenInfo{
			Kind:     kind,
			ClientID: claims.ClientID,
			UserID:   claims.UserID,
			Scopes:   NewScopeSet(claims.Scopes...),
			Claims:   claims,
		}
		if claims.ExpiresAt != nil {
			info.ExpiresAt = claims.ExpiresAt.Time
		}
		return info, nil
	}

	if isRefresh {
		rec, err := e.store.GetRefreshToken(ctx, token)
		if err != nil {
			return nil, errors.Mark(ErrInvalidGrant, 0)
		}
		for _, s := range scopes {
			if !rec.Scopes.Granted(s) {
				return nil, errors.Mark(ErrInvalidGrant, 0)
			}
		}
		return &TokenInfo{
			Kind:     KindRefresh,
			ClientID: rec.ClientID,
			UserID:   rec.UserID,
			Scopes:   rec.Scopes,
		}, nil
	}

	rec, err := e.store.GetAccessToken(ctx, token)
	if err != nil {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	if !rec.ExpiresAt.After(e.now()) {
		_ = e.store.DeleteAccessToken(ctx, token)
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	for _, s := range scopes {
		if !rec.Scopes.Granted(s) {
			return nil, errors.Mark(ErrInvalidGrant, 0)
		}
	}
	return &TokenInfo{
		Kind:      KindAccess,
		ClientID:  rec.ClientID,
		UserID:    rec.UserID,
		Scopes:    rec.Scopes,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// VerifyTokenAndScope verifies either an explicit refresh token or the
// bearer token carried in an Authorization header. The header scheme must
// be exactly "Bearer"; anything else is ErrInvalidRequest.
func (e *Engine) VerifyTokenAndScope(ctx context.Context, authHeader string, scopes []string, refreshToken string) (*TokenInfo, error) {
	if refreshToken != "" {
		return e.VerifyRefreshToken(ctx, refreshToken, scopes)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return nil, errors.Mark(ErrInvalidRequest, 0)
	}
	return e.VerifyAccessToken(ctx, parts[1], scopes)
}

// ExchangeAuthCode is the convenience composition of the token-endpoint
// code path: verify the code, mint an access/refresh pair, store it.
func (e *Engine) ExchangeAuthCode(ctx context.Context, req RedeemRequest) (*TokenPair, error) {
	grant, err := e.VerifyAuthCode(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.issuePair(ctx, grant.ClientID, grant.UserID, grant.Scopes.List(), req.Code, "")
}

// RefreshAccessToken rotates a refresh token: the old pair is revoked and
// a new pair inherits the old token's lineage. Requested scopes, if any,
// must be a subset of the old token's scopes.
func (e *Engine) RefreshAccessToken(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	client, err := e.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, errors.Mark(ErrUnauthorizedClient, 0)
	}
	if !e.secrets.Verify(client, req.ClientSecret) {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	info, err := e.VerifyRefreshToken(ctx, req.RefreshToken, req.Scopes)
	if err != nil {
		return nil, err
	}
	if info.ClientID != req.ClientID {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = info.Scopes.List()
	}
	return e.issuePair(ctx, req.ClientID, info.UserID, scopes, "", req.RefreshToken)
}

func (e *Engine) issuePair(ctx context.Context, clientID, userID string, scopes []string, authCode, oldRefresh string) (*TokenPair, error) {
	opts := TokenOptions{ClientID: clientID, UserID: userID, Scopes: scopes}
	access, err := e.Token(ctx, KindAccess, opts)
	if err != nil {
		return nil, err
	}
	refresh, err := e.Token(ctx, KindRefresh, opts)
	if err != nil {
		return nil, err
	}

	err = e.StoreAccessToken(ctx, StoreTokensRequest{
		ClientID:        clientID,
		AccessToken:     access,
		RefreshToken:    refresh,
		UserID:          userID,
		Scopes:          scopes,
		AuthCode:        authCode,
		OldRefreshToken: oldRefresh,
	})
	if err != nil {
		return nil, err
	}

	e.log(ctx).Infow("issued token pair", "client", clientID, "user", userID,
		"scopes", FormatScopes(scopes), "rotated", oldRefresh != "")
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.accessTokenTTL / time.Second),
		Scopes:       scopes,
		UserID:       userID,
	}, nil
}

// Revoke invalidates a token. Opaque tokens and their paired counterparts
// are deleted from the store; signed tokens are added to the denylist,
// which must have been configured.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	if e.signed != nil {
		if e.denylist == nil {
			return errors.Errorf("grantkit: revocation in signed mode requires a denylist")
		}
		claims, err := e.signed.Decode(token)
		if err != nil {
			return err
		}
		return e.denylist.Revoke(ctx, claims.ID)
	}

	if rec, err := e.store.GetAccessToken(ctx, token); err == nil {
		if rec.RefreshToken != "" {
			_ = e.store.DeleteRefreshToken(ctx, rec.RefreshToken)
		}
		return e.store.DeleteAccessToken(ctx, token)
	}
	if rec, err := e.store.GetRefreshToken(ctx, token); err == nil {
		if rec.AccessToken != "" {
			_ = e.store.DeleteAccessToken(ctx, rec.AccessToken)
		}
		return e.store.DeleteRefreshToken(ctx, token)
	}
	return errors.Mark(ErrInvalidGrant, 0)
}

func (e *Engine) checkDenylist(ctx context.Context, jti string) error {
	if e.denylist == nil {
		return nil
	}
	revoked, err := e.denylist.IsRevoked(ctx, jti)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	if revoked {
		return errors.Mark(ErrInvalidGrant, 0)
	}
	return nil
}
