package grantkit

import (
	"time"

	"github.com/dpup/grantkit/errors"
	"github.com/dpup/grantkit/logging"
)

// Default lifetimes for authorization codes and access tokens.
const (
	DefaultAuthCodeTTL    = 10 * time.Minute
	DefaultAccessTokenTTL = time.Hour
)

// Builder provides a fluent interface for configuring an Engine.
type Builder struct {
	clients        []Client
	registry       ClientRegistry
	store          Store
	secret         []byte
	secrets        SecretVerifier
	owner          ResourceOwner
	denylist       Denylist
	authCodeTTL    time.Duration
	accessTokenTTL time.Duration
	strictRedirect bool
	now            func() time.Time
	logger         logging.Logger
}

// NewBuilder creates an engine builder with sensible defaults: opaque
// tokens backed by an in-memory store, constant-time plaintext secret
// comparison, a permissive resource-owner bridge, a 10 minute code TTL,
// and a 1 hour access token TTL.
func NewBuilder() *Builder {
	return &Builder{
		secrets:        PlaintextVerifier,
		owner:          PermissiveResourceOwner(),
		authCodeTTL:    DefaultAuthCodeTTL,
		accessTokenTTL: DefaultAccessTokenTTL,
		now:            time.Now,
		logger:         logging.NewNopLogger(),
	}
}

// WithClient adds a static client to the default in-memory registry.
func (b *Builder) WithClient(client Client) *Builder {
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}
	b.clients = append(b.clients, client)
	return b
}

// WithClients adds several static clients at once.
func (b *Builder) WithClients(clients ...Client) *Builder {
	for _, c := range clients {
		b.WithClient(c)
	}
	return b
}

// WithClientRegistry sets a custom client registry, replacing the static
// client list. Use this when clients live in a database.
func (b *Builder) WithClientRegistry(registry ClientRegistry) *Builder {
	b.registry = registry
	return b
}

// WithStore sets a custom token store for persistent or distributed
// deployments. The store must honor the atomicity contract documented on
// Store.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithSigningSecret switches the engine to signed self-contained tokens.
// With a secret set, no store operation is invoked during issuance or
// verification, and revocation requires a denylist.
func (b *Builder) WithSigningSecret(secret []byte) *Builder {
	b.secret = secret
	return b
}

// WithSecretVerifier overrides how client secrets are checked, e.g.
// BcryptVerifier for registries holding digests instead of plaintext.
func (b *Builder) WithSecretVerifier(v SecretVerifier) *Builder {
	b.secrets = v
	return b
}

// WithResourceOwner sets the host's login/consent bridge.
func (b *Builder) WithResourceOwner(owner ResourceOwner) *Builder {
	b.owner = owner
	return b
}

// WithDenylist enables revocation of signed tokens.
func (b *Builder) WithDenylist(d Denylist) *Builder {
	b.denylist = d
	return b
}

// WithAuthCodeTTL sets the authorization code lifetime.
func (b *Builder) WithAuthCodeTTL(d time.Duration) *Builder {
	b.authCodeTTL = d
	return b
}

// WithAccessTokenTTL sets the access token lifetime.
func (b *Builder) WithAccessTokenTTL(d time.Duration) *Builder {
	b.accessTokenTTL = d
	return b
}

// WithStrictRedirectValidation requires the redemption redirect URI to
// equal the stored one even when the request omits it, per RFC 6749
// §4.1.3. The default keeps the lax legacy behavior.
func (b *Builder) WithStrictRedirectValidation(strict bool) *Builder {
	b.strictRedirect = strict
	return b
}

// WithTimeFunc overrides the engine clock. Tests use this to exercise
// expiry without sleeping.
func (b *Builder) WithTimeFunc(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithLogger sets the fallback logger used when the request context does
// not carry one.
func (b *Builder) WithLogger(logger logging.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and returns the engine. It fails when
// neither static clients nor a client registry were supplied: the library
// cannot operate without a way to resolve clients.
func (b *Builder) Build() (*Engine, error) {
	if len(b.clients) == 0 && b.registry == nil {
		return nil, errors.Errorf("grantkit: static clients or a client registry are required")
	}
	if b.registry != nil && len(b.clients) > 0 {
		return nil, errors.Errorf("grantkit: static clients and a client registry are mutually exclusive")
	}

	registry := b.registry
	if registry == nil {
		registry = NewClientRegistry(b.clients...)
	}
	store := b.store
	if store == nil {
		store = NewMemoryStore()
	}

	e := &Engine{
		registry:       registry,
		store:          store,
		secrets:        b.secrets,
		owner:          b.owner,
		denylist:       b.denylist,
		authCodeTTL:    b.authCodeTTL,
		accessTokenTTL: b.accessTokenTTL,
		strictRedirect: b.strictRedirect,
		now:            b.now,
		logger:         b.logger,
	}

	if len(b.secret) > 0 {
		sc := &signedCodec{secret: b.secret, now: e.now}
		e.signed = sc
		e.codec = sc
	} else {
		e.codec = opaqueCodec{now: e.now}
	}
	return e, nil
}
