// Package grantkit implements the core of an OAuth 2.0 authorization
// server: the authorization code grant state machine and token lifecycle
// of RFC 6749 §4.1.
//
// The library is consumed by a host application that owns HTTP routing,
// login, consent, and persistence. The host calls the Engine at each
// protocol step; the engine delegates persistence to a Store and token
// formatting to a codec. Two token modes are supported: opaque random
// tokens backed by the store, and signed self-contained tokens with no
// server-side state.
//
// # Basic Usage
//
//	engine, err := grantkit.NewBuilder().
//		WithClient(grantkit.Client{
//			ID:     "my-app",
//			Secret: "secret",
//			Scopes: grantkit.NewScopeSet("read", "write"),
//		}).
//		Build()
//
//	code, err := engine.IssueAuthCode(ctx, grantkit.AuthCodeRequest{
//		ClientID:    "my-app",
//		UserID:      "user-123",
//		RedirectURI: "https://app.example.com/cb",
//		Scopes:      []string{"read"},
//	})
//
//	grant, err := engine.VerifyAuthCode(ctx, grantkit.RedeemRequest{
//		ClientID:     "my-app",
//		ClientSecret: "secret",
//		Code:         code,
//		RedirectURI:  "https://app.example.com/cb",
//	})
//
// Protocol failures are structured errors; test them with errors.Is
// against the sentinels below, or map them to their wire string with
// Kind.
package grantkit

import (
	"github.com/dpup/grantkit/errors"
	"google.golang.org/grpc/codes"
)

// Error kinds from RFC 6749 §5.2 and §4.1.2.1. These are the only
// protocol errors the engine emits.
var (
	// ErrInvalidRequest indicates a malformed bearer header.
	ErrInvalidRequest = errors.NewC("invalid_request", codes.InvalidArgument)

	// ErrInvalidScope indicates a requested scope the client has never been
	// assigned.
	ErrInvalidScope = errors.NewC("invalid_scope", codes.InvalidArgument)

	// ErrAccessDenied indicates a requested scope that is assigned to the
	// client but disabled.
	ErrAccessDenied = errors.NewC("access_denied", codes.PermissionDenied)

	// ErrUnauthorizedClient indicates an unknown client id.
	ErrUnauthorizedClient = errors.NewC("unauthorized_client", codes.Unauthenticated)

	// ErrInvalidGrant covers every failure of code or token verification:
	// absence, expiry, bad secret, bad redirect, replay, scope mismatch,
	// malformed signed token. A single kind is used for all of them so the
	// responses don't form an oracle.
	ErrInvalidGrant = errors.NewC("invalid_grant", codes.InvalidArgument)
)

// Kind returns the RFC 6749 error string for a protocol error, or the
// empty string for nil and non-protocol errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrUnauthorizedClient):
		return "unauthorized_client"
	case errors.Is(err, ErrInvalidGrant):
		return "invalid_grant"
	}
	return ""
}
