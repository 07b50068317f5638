package grantkit

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/dpup/grantkit/errors"
	"golang.org/x/crypto/bcrypt"
)

// Client represents an OAuth2 client application.
type Client struct {
	// ID is the unique client identifier.
	ID string

	// Secret is the client secret for confidential clients. Depending on
	// the registry's SecretVerifier this is either the plaintext secret or
	// a digest of it.
	Secret string

	// Name is a human-readable name for the client.
	Name string

	// RedirectURIs is the list of allowed redirect URIs for the
	// authorization code flow.
	RedirectURIs []string

	// Scopes maps scope names to whether the client may request them. A
	// false value marks a scope that is assigned but disabled.
	Scopes ScopeSet

	// CreatedAt is when the client was registered.
	CreatedAt time.Time
}

// ClientRegistry resolves client records by id. Registries are immutable
// for the lifetime of an Engine; hosts with dynamic clients supply their
// own implementation.
type ClientRegistry interface {
	// Lookup returns the client for the given id, or an error marking
	// ErrUnauthorizedClient when no such client exists.
	Lookup(ctx context.Context, clientID string) (*Client, error)
}

// NewClientRegistry returns an in-memory registry holding the given
// clients.
func NewClientRegistry(clients ...Client) ClientRegistry {
	r := &memoryClientRegistry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

type memoryClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func (r *memoryClientRegistry) Lookup(ctx context.Context, clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, errors.Mark(ErrUnauthorizedClient, 1)
	}
	return &c, nil
}

// SecretVerifier checks a presented client secret against the stored one.
// Implementations must not leak timing information about the stored
// secret.
type SecretVerifier interface {
	// Verify reports whether the presented secret matches the client's
	// stored secret.
	Verify(client *Client, secret string) bool
}

// PlaintextVerifier compares plaintext secrets in constant time. This is
// the default, suitable for development and for hosts that keep secrets in
// a vault.
var PlaintextVerifier SecretVerifier = plaintextVerifier{}

// BcryptVerifier treats Client.Secret as a bcrypt digest of the real
// secret. Use HashSecret to produce digests for the registry.
var BcryptVerifier SecretVerifier = bcryptVerifier{}

type plaintextVerifier struct{}

func (plaintextVerifier) Verify(client *Client, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) == 1
}

type bcryptVerifier struct{}

func (bcryptVerifier) Verify(client *Client, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(client.Secret), []byte(secret)) == nil
}

// HashSecret returns a bcrypt digest of a client secret, for use with
// BcryptVerifier.
func HashSecret(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	return string(digest), nil
}
