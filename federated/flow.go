package federated

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"

	identity "github.com/encorehq/go-identity"
	"github.com/encorehq/go-identity/credentials"
)

const (
	payloadProvider = "provider"
	payloadRedirect = "redirect"
)

// Flow drives the federated channel across its two legs. State lives in
// the shared credential store, not in process memory, so initiation and
// callback may land on different instances.
type Flow struct {
	providers map[string]Provider
	store     credentials.Store
	resolver  *identity.UserResolver
	logger    identity.Logger
	ttl       time.Duration
	now       func() time.Time
}

type FlowOption func(*Flow)

func NewFlow(store credentials.Store, resolver *identity.UserResolver, providers []Provider, opts ...FlowOption) *Flow {
	f := &Flow{
		providers: map[string]Provider{},
		store:     store,
		resolver:  resolver,
		ttl:       credentials.OAuthStateTTL,
		now:       time.Now,
	}

	for _, p := range providers {
		f.providers[p.Name()] = p
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.logger == nil {
		f.logger = identity.NewDefaultLogger()
	}

	return f
}

func WithLogger(logger identity.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithClock overrides the time source, used by tests to age state.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.now = now
	}
}

// Providers lists the registered provider names.
func (f *Flow) Providers() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	return names
}

// Initiate mints an opaque state value, stores it with the provider name
// and post-auth redirect, and returns the provider authorization URL.
func (f *Flow) Initiate(ctx context.Context, providerName, redirect string) (string, error) {
	p, ok := f.providers[providerName]
	if !ok {
		return "", identity.ErrInvalidInput.Clone().WithMetadata(map[string]any{
			"provider": providerName,
		})
	}

	now := f.now()
	cred := &credentials.Credential{
		Token:     credentials.NewToken(),
		Kind:      credentials.KindOAuthState,
		Payload:   map[string]string{payloadProvider: providerName},
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	}

	if redirect != "" {
		cred.Payload[payloadRedirect] = redirect
	}

	if err := f.store.Put(ctx, cred); err != nil {
		return "", err
	}

	return p.AuthCodeURL(cred.Token), nil
}

// Callback completes the flow. The state is consumed before anything else:
// an unknown, reused, or tampered state fails closed without a single call
// to the provider. On success the verified claims resolve to the canonical
// user and the stored redirect comes back out.
func (f *Flow) Callback(ctx context.Context, state, code string) (*identity.User, bool, string, error) {
	if state == "" || code == "" {
		return nil, false, "", identity.ErrInvalidState
	}

	cred, err := f.store.Consume(ctx, credentials.KindOAuthState, state)
	if err != nil {
		if identity.IsCredentialNotFound(err) {
			return nil, false, "", identity.ErrInvalidState
		}
		return nil, false, "", err
	}

	if cred.Expired(f.now()) {
		return nil, false, "", identity.ErrInvalidState
	}

	p, ok := f.providers[cred.Payload[payloadProvider]]
	if !ok {
		return nil, false, "", identity.ErrInvalidState
	}

	claims, err := p.Exchange(ctx, code)
	if err != nil {
		f.logger.Error("provider %s exchange failed: %v", p.Name(), err)
		return nil, false, "", errors.Wrap(err, errors.CategoryAuth, "provider exchange failed").
			WithTextCode(identity.TextCodeProviderExchange)
	}

	if claims.Email == "" || !claims.EmailVerified {
		return nil, false, "", identity.ErrProviderExchangeFailed.Clone().WithMetadata(map[string]any{
			"reason": "unverified_email",
		})
	}

	user, created, err := f.resolver.Resolve(ctx, identity.FederatedProof{
		Provider:    p.Name(),
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		AvatarURL:   claims.AvatarURL,
	})
	if err != nil {
		return nil, false, "", err
	}

	return user, created, cred.Payload[payloadRedirect], nil
}
