package grantkit

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dpup/grantkit/errors"
)

// TokenKind distinguishes the three token families the engine issues.
type TokenKind int

const (
	// KindAuth is a short-lived authorization code.
	KindAuth TokenKind = iota + 1
	// KindAccess is a bearer access token.
	KindAccess
	// KindRefresh is a long-lived refresh token with no expiry.
	KindRefresh
)

// String returns the wire name of the kind, as used in signed token
// claims.
func (k TokenKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	}
	return "unknown"
}

// kindFromString is the inverse of TokenKind.String. Returns 0 for
// unrecognized names.
func kindFromString(s string) TokenKind {
	switch s {
	case "auth":
		return KindAuth
	case "access":
		return KindAccess
	case "refresh":
		return KindRefresh
	}
	return 0
}

// TokenDescriptor is the abstract content of a token handed to a codec.
type TokenDescriptor struct {
	Kind     TokenKind
	ClientID string
	UserID   string
	Scopes   []string

	// Audience is the redirect URI for authorization codes.
	Audience string

	// TTL is zero for refresh tokens, which do not self-expire.
	TTL time.Duration
}

// Codec converts a token descriptor into a transportable string. The
// opaque codec emits random identifiers whose meaning lives in the Store;
// the signed codec emits self-contained JWTs.
type Codec interface {
	Encode(desc TokenDescriptor) (string, error)
}

// opaqueCodec produces high-entropy random identifiers. Nothing is
// recoverable from the string; verification consults the Store.
type opaqueCodec struct {
	now func() time.Time
}

// Encode concatenates the current seconds, microseconds, a random 64-bit
// value, and 30 random octets, then base64url-encodes the result.
func (c opaqueCodec) Encode(desc TokenDescriptor) (string, error) {
	var buf [38]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", errors.Wrap(err, 0)
	}

	now := c.now()
	raw := fmt.Appendf(nil, "%d-%d-%d-",
		now.Unix(),
		now.UnixMicro()%1_000_000,
		binary.BigEndian.Uint64(buf[:8]))
	raw = append(raw, buf[8:]...)

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
