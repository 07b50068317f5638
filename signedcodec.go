package grantkit

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/dpup/grantkit/errors"
	"github.com/golang-jwt/jwt/v5"
)

// SignedClaims is the claim set carried by self-contained tokens. The
// registered claims hold iat, exp, aud, and jti.
type SignedClaims struct {
	jwt.RegisteredClaims

	Kind     string   `json:"type"`
	ClientID string   `json:"client"`
	UserID   string   `json:"user_id,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// TokenKind returns the tagged kind for the type claim.
func (c *SignedClaims) TokenKind() TokenKind {
	return kindFromString(c.Kind)
}

// HasScope reports whether a scope appears in the scopes claim.
func (c *SignedClaims) HasScope(name string) bool {
	for _, s := range c.Scopes {
		if s == name {
			return true
		}
	}
	return false
}

// signedCodec produces and validates HMAC-signed self-contained tokens.
// The shared secret is set once at engine construction and must not be
// logged.
type signedCodec struct {
	secret []byte
	now    func() time.Time
}

func (c *signedCodec) Encode(desc TokenDescriptor) (string, error) {
	// 32 random octets keep jti collisions out of reach even across
	// restarts, where a counter would repeat.
	var jti [32]byte
	if _, err := rand.Read(jti[:]); err != nil {
		return "", errors.Wrap(err, 0)
	}

	now := c.now()
	claims := &SignedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       base64.RawURLEncoding.EncodeToString(jti[:]),
			IssuedAt: jwt.NewNumericDate(now),
		},
		Kind:     desc.Kind.String(),
		ClientID: desc.ClientID,
		UserID:   desc.UserID,
		Scopes:   desc.Scopes,
	}
	if desc.Audience != "" {
		claims.Audience = jwt.ClaimStrings{desc.Audience}
	}
	if desc.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(desc.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	return ss, nil
}

// Decode validates the signature and the exp claim and returns the claim
// set. Any parse or validation failure maps to ErrInvalidGrant.
func (c *signedCodec) Decode(tokenString string) (*SignedClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&SignedClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}

	claims, ok := token.Claims.(*SignedClaims)
	if !ok || !token.Valid {
		return nil, errors.Mark(ErrInvalidGrant, 0)
	}
	return claims, nil
}
