package grantkit

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpaqueCodecFormat(t *testing.T) {
	codec := opaqueCodec{now: time.Now}

	token, err := codec.Encode(TokenDescriptor{Kind: KindAccess})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	// seconds-microseconds-rand64- followed by 30 random octets. The
	// first three fields are digit-only, so the first three dashes are
	// the separators even if the random tail contains one.
	parts := bytes.SplitN(raw, []byte("-"), 4)
	require.Len(t, parts, 4)
	for _, p := range parts[:3] {
		assert.Regexp(t, `^\d+$`, string(p))
	}
	assert.Len(t, parts[3], 30)
}

func TestOpaqueCodecUniqueness(t *testing.T) {
	codec := opaqueCodec{now: time.Now}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := codec.Encode(TokenDescriptor{Kind: KindAuth})
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestTokenKindStrings(t *testing.T) {
	assert.Equal(t, "auth", KindAuth.String())
	assert.Equal(t, "access", KindAccess.String())
	assert.Equal(t, "refresh", KindRefresh.String())
	assert.Equal(t, "unknown", TokenKind(0).String())

	assert.Equal(t, KindAuth, kindFromString("auth"))
	assert.Equal(t, KindAccess, kindFromString("access"))
	assert.Equal(t, KindRefresh, kindFromString("refresh"))
	assert.Equal(t, TokenKind(0), kindFromString("bogus"))
}

func TestSignedCodecRoundTrip(t *testing.T) {
	clock := newFakeClock()
	codec := &signedCodec{secret: signingSecret, now: clock.Now}

	token, err := codec.Encode(TokenDescriptor{
		Kind:     KindAuth,
		ClientID: "TrendyNewService",
		UserID:   "user-1",
		Scopes:   []string{"post_images"},
		Audience: redirectURI,
		TTL:      10 * time.Minute,
	})
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "auth", claims.Kind)
	assert.Equal(t, "TrendyNewService", claims.ClientID)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, []string{"post_images"}, claims.Scopes)
	require.Len(t, claims.Audience, 1)
	assert.Equal(t, redirectURI, claims.Audience[0])
	assert.Equal(t, clock.Now().Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, clock.Now().Add(10*time.Minute).Unix(), claims.ExpiresAt.Unix())

	// The jti claim is 32 random octets.
	jti, err := base64.RawURLEncoding.DecodeString(claims.ID)
	require.NoError(t, err)
	assert.Len(t, jti, 32)
}

func TestSignedCodecNoTTLOmitsExp(t *testing.T) {
	clock := newFakeClock()
	codec := &signedCodec{secret: signingSecret, now: clock.Now}

	token, err := codec.Encode(TokenDescriptor{
		Kind:     KindRefresh,
		ClientID: "TrendyNewService",
	})
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)

	// Still valid arbitrarily far in the future.
	clock.Advance(1000 * time.Hour)
	_, err = codec.Decode(token)
	assert.NoError(t, err)
}
