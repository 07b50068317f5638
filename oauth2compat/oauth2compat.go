// Package oauth2compat adapts grantkit's client registry and token store
// to the interfaces of github.com/go-oauth2/oauth2/v4, so hosts that
// front their endpoints with that library can keep grantkit as the system
// of record.
//
//	manager := manage.NewDefaultManager()
//	manager.MapClientStorage(oauth2compat.NewClientStore(registry))
//	manager.MapTokenStorage(oauth2compat.NewTokenStore(store))
package oauth2compat

import (
	"context"
	"strings"
	"time"

	"github.com/dpup/grantkit"
	"github.com/go-oauth2/oauth2/v4"
)

// NewClientStore wraps a grantkit.ClientRegistry as an oauth2.ClientStore.
func NewClientStore(registry grantkit.ClientRegistry) oauth2.ClientStore {
	return &clientStore{registry: registry}
}

type clientStore struct {
	registry grantkit.ClientRegistry
}

// GetByID implements oauth2.ClientStore.
func (s *clientStore) GetByID(ctx context.Context, id string) (oauth2.ClientInfo, error) {
	client, err := s.registry.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &clientInfo{client: client}, nil
}

// clientInfo adapts a grantkit.Client to oauth2.ClientInfo.
type clientInfo struct {
	client *grantkit.Client
}

func (c *clientInfo) GetID() string     { return c.client.ID }
func (c *clientInfo) GetSecret() string { return c.client.Secret }
func (c *clientInfo) GetDomain() string {
	// go-oauth2 validates redirect URIs against a single domain string; a
	// newline join lets a custom ValidateURIHandler check each one.
	return strings.Join(c.client.RedirectURIs, "\n")
}
func (c *clientInfo) IsPublic() bool    { return c.client.Secret == "" }
func (c *clientInfo) GetUserID() string { return "" }

// NewTokenStore wraps a grantkit.Store as an oauth2.TokenStore. Single
// use of authorization codes is go-oauth2's responsibility here: its
// manager removes a code immediately after loading it.
func NewTokenStore(store grantkit.Store) oauth2.TokenStore {
	return &tokenStore{store: store}
}

type tokenStore struct {
	store grantkit.Store
}

// Create stores the authorization code or token pair carried by info.
func (s *tokenStore) Create(ctx context.Context, info oauth2.TokenInfo) error {
	if code := info.GetCode(); code != "" {
		return s.store.PutAuthCode(ctx, &grantkit.AuthCode{
			Code:        code,
			ClientID:    info.GetClientID(),
			UserID:      info.GetUserID(),
			RedirectURI: info.GetRedirectURI(),
			Scopes:      grantkit.NewScopeSet(grantkit.ParseScopes(info.GetScope())...),
			ExpiresAt:   info.GetCodeCreateAt().Add(info.GetCodeExpiresIn()),
		})
	}

	scopes := grantkit.NewScopeSet(grantkit.ParseScopes(info.GetScope())...)
	access := &grantkit.AccessTokenRecord{
		Token:        info.GetAccess(),
		ClientID:     info.GetClientID(),
		UserID:       info.GetUserID(),
		Scopes:       scopes,
		ExpiresAt:    info.GetAccessCreateAt().Add(info.GetAccessExpiresIn()),
		RefreshToken: info.GetRefresh(),
	}
	var refresh *grantkit.RefreshTokenRecord
	if info.GetRefresh() != "" {
		refresh = &grantkit.RefreshTokenRecord{
			Token:       info.GetRefresh(),
			ClientID:    info.GetClientID(),
			UserID:      info.GetUserID(),
			Scopes:      scopes,
			AccessToken: info.GetAccess(),
		}
	}
	return s.store.PutAccessToken(ctx, access, refresh)
}

// RemoveByCode removes a token by its authorization code.
func (s *tokenStore) RemoveByCode(ctx context.Context, code string) error {
	return s.store.DeleteAuthCode(ctx, code)
}

// RemoveByAccess removes a token by its access token.
func (s *tokenStore) RemoveByAccess(ctx context.Context, access string) error {
	return s.store.DeleteAccessToken(ctx, access)
}

// RemoveByRefresh removes a token by its refresh token.
func (s *tokenStore) RemoveByRefresh(ctx context.Context, refresh string) error {
	return s.store.DeleteRefreshToken(ctx, refresh)
}

// GetByCode retrieves a token by its authorization code.
func (s *tokenStore) GetByCode(ctx context.Context, code string) (oauth2.TokenInfo, error) {
	rec, err := s.store.TakeAuthCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &tokenInfo{
		clientID:      rec.ClientID,
		userID:        rec.UserID,
		scope:         grantkit.FormatScopes(rec.Scopes.List()),
		code:          rec.Code,
		codeCreateAt:  time.Now(),
		codeExpiresIn: time.Until(rec.ExpiresAt),
		redirectURI:   rec.RedirectURI,
	}, nil
}

// GetByAccess retrieves a token by its access token.
func (s *tokenStore) GetByAccess(ctx context.Context, access string) (oauth2.TokenInfo, error) {
	rec, err := s.store.GetAccessToken(ctx, access)
	if err != nil {
		return nil, err
	}
	return &tokenInfo{
		clientID:        rec.ClientID,
		userID:          rec.UserID,
		scope:           grantkit.FormatScopes(rec.Scopes.List()),
		access:          rec.Token,
		accessCreateAt:  time.Now(),
		accessExpiresIn: time.Until(rec.ExpiresAt),
		refresh:         rec.RefreshToken,
	}, nil
}

// GetByRefresh retrieves a token by its refresh token.
func (s *tokenStore) GetByRefresh(ctx context.Context, refresh string) (oauth2.TokenInfo, error) {
	rec, err := s.store.GetRefreshToken(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return &tokenInfo{
		clientID: rec.ClientID,
		userID:   rec.UserID,
		scope:    grantkit.FormatScopes(rec.Scopes.List()),
		access:   rec.AccessToken,
		refresh:  rec.Token,
	}, nil
}

// tokenInfo adapts grantkit records to the oauth2.TokenInfo interface.
type tokenInfo struct {
	clientID            string
	userID              string
	scope               string
	code                string
	codeCreateAt        time.Time
	codeExpiresIn       time.Duration
	codeChallenge       string
	codeChallengeMethod string
	access              string
	accessCreateAt      time.Time
	accessExpiresIn     time.Duration
	refresh             string
	refreshCreateAt     time.Time
	refreshExpiresIn    time.Duration
	redirectURI         string
}

func (t *tokenInfo) New() oauth2.TokenInfo                      { return &tokenInfo{} }
func (t *tokenInfo) GetClientID() string                        { return t.clientID }
func (t *tokenInfo) SetClientID(s string)                       { t.clientID = s }
func (t *tokenInfo) GetUserID() string                          { return t.userID }
func (t *tokenInfo) SetUserID(s string)                         { t.userID = s }
func (t *tokenInfo) GetScope() string                           { return t.scope }
func (t *tokenInfo) SetScope(s string)                          { t.scope = s }
func (t *tokenInfo) GetCode() string                            { return t.code }
func (t *tokenInfo) SetCode(s string)                           { t.code = s }
func (t *tokenInfo) GetCodeCreateAt() time.Time                 { return t.codeCreateAt }
func (t *tokenInfo) SetCodeCreateAt(at time.Time)               { t.codeCreateAt = at }
func (t *tokenInfo) GetCodeExpiresIn() time.Duration            { return t.codeExpiresIn }
func (t *tokenInfo) SetCodeExpiresIn(d time.Duration)           { t.codeExpiresIn = d }
func (t *tokenInfo) GetCodeChallenge() string                   { return t.codeChallenge }
func (t *tokenInfo) SetCodeChallenge(s string)                  { t.codeChallenge = s }
func (t *tokenInfo) GetCodeChallengeMethod() oauth2.CodeChallengeMethod {
	return oauth2.CodeChallengeMethod(t.codeChallengeMethod)
}
func (t *tokenInfo) SetCodeChallengeMethod(m oauth2.CodeChallengeMethod) {
	t.codeChallengeMethod = string(m)
}
func (t *tokenInfo) GetAccess() string                     { return t.access }
func (t *tokenInfo) SetAccess(s string)                    { t.access = s }
func (t *tokenInfo) GetAccessCreateAt() time.Time          { return t.accessCreateAt }
func (t *tokenInfo) SetAccessCreateAt(at time.Time)        { t.accessCreateAt = at }
func (t *tokenInfo) GetAccessExpiresIn() time.Duration     { return t.accessExpiresIn }
func (t *tokenInfo) SetAccessExpiresIn(d time.Duration)    { t.accessExpiresIn = d }
func (t *tokenInfo) GetRefresh() string                    { return t.refresh }
func (t *tokenInfo) SetRefresh(s string)                   { t.refresh = s }
func (t *tokenInfo) GetRefreshCreateAt() time.Time         { return t.refreshCreateAt }
func (t *tokenInfo) SetRefreshCreateAt(at time.Time)       { t.refreshCreateAt = at }
func (t *tokenInfo) GetRefreshExpiresIn() time.Duration    { return t.refreshExpiresIn }
func (t *tokenInfo) SetRefreshExpiresIn(d time.Duration)   { t.refreshExpiresIn = d }
func (t *tokenInfo) GetRedirectURI() string                { return t.redirectURI }
func (t *tokenInfo) SetRedirectURI(s string)               { t.redirectURI = s }
