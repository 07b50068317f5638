package grantkit

import "context"

// ResourceOwner is the bridge through which the host reports the end
// user's authentication and consent state. The engine consults these
// hooks in Authorize but never implements them: a false return means the
// host has taken over (typically by redirecting to a login or consent
// page) and the grant should not proceed yet.
type ResourceOwner interface {
	// LoginResourceOwner reports whether a user is currently
	// authenticated.
	LoginResourceOwner(ctx context.Context) bool

	// ConfirmByResourceOwner reports whether the user has approved the
	// client's request for the given scopes.
	ConfirmByResourceOwner(ctx context.Context, clientID string, scopes []string) bool
}

// PermissiveResourceOwner returns the default bridge, which approves
// everything. This enables the trivial single-process development mode;
// production hosts supply their own implementation.
func PermissiveResourceOwner() ResourceOwner {
	return permissiveResourceOwner{}
}

type permissiveResourceOwner struct{}

func (permissiveResourceOwner) LoginResourceOwner(ctx context.Context) bool {
	return true
}

func (permissiveResourceOwner) ConfirmByResourceOwner(ctx context.Context, clientID string, scopes []string) bool {
	return true
}
