// Package magiclink implements the email channel. A request mints an
// opaque link token and mails a sign-in URL; opening the URL consumes the
// token and starts a session. The token is its own secret, so consumption
// is a single delete-on-read.
package magiclink

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"

	identity "github.com/encorehq/go-identity"
	"github.com/encorehq/go-identity/credentials"
)

const sendTimeout = 10 * time.Second

// payloadRedirect carries the post-auth redirect through the credential.
const payloadRedirect = "redirect"

// Channel drives the magic link flow end to end.
type Channel struct {
	store    credentials.Store
	limiter  credentials.Limiter
	resolver *identity.UserResolver
	notifier identity.Notifier
	keys     credentials.Keys
	logger   identity.Logger
	baseURL  string
	ttl      time.Duration
	now      func() time.Time
}

type ChannelOption func(*Channel)

func NewChannel(
	store credentials.Store,
	limiter credentials.Limiter,
	resolver *identity.UserResolver,
	notifier identity.Notifier,
	keys credentials.Keys,
	baseURL string,
	opts ...ChannelOption,
) *Channel {
	c := &Channel{
		store:    store,
		limiter:  limiter,
		resolver: resolver,
		notifier: notifier,
		keys:     keys,
		baseURL:  baseURL,
		ttl:      credentials.MagicLinkTTL,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = identity.NewDefaultLogger()
	}

	return c
}

func WithLogger(logger identity.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

func WithTTL(ttl time.Duration) ChannelOption {
	return func(c *Channel) {
		c.ttl = ttl
	}
}

// WithClock overrides the time source, used by tests to age credentials.
func WithClock(now func() time.Time) ChannelOption {
	return func(c *Channel) {
		c.now = now
	}
}

// RequestLink mints a link token for the email address and mails the
// sign-in URL. The redirect, when non empty, rides along inside the
// credential and comes back out on consumption.
func (c *Channel) RequestLink(ctx context.Context, email, redirect string) (string, error) {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return "", identity.ErrInvalidInput.Clone().WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	destinationHash := c.keys.HashDestination(email)

	if err := c.limiter.Allow(ctx, destinationHash); err != nil {
		return "", err
	}

	sealed, err := c.keys.Seal(email)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to seal destination")
	}

	now := c.now()
	cred := &credentials.Credential{
		Token:             credentials.NewToken(),
		Kind:              credentials.KindMagicLink,
		DestinationHash:   destinationHash,
		SealedDestination: sealed,
		CreatedAt:         now,
		ExpiresAt:         now.Add(c.ttl),
	}

	if redirect != "" {
		cred.Payload = map[string]string{payloadRedirect: redirect}
	}

	if err := c.store.Put(ctx, cred); err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	link := c.baseURL + "/auth/magic/" + cred.Token
	body := fmt.Sprintf("Sign in by opening this link: %s\nIt expires in %d minutes and works once.", link, int(c.ttl.Minutes()))

	if err := c.notifier.Send(sendCtx, email, body); err != nil {
		c.logger.Error("magic link delivery to %s failed: %v", destinationHash, err)
		return cred.Token, errors.Wrap(err, errors.CategoryOperation, "message delivery failed").
			WithTextCode(identity.TextCodeDeliveryFailed)
	}

	return cred.Token, nil
}

// IdentityPreview reports whether the email belongs to a known user so the
// caller can tailor the welcome copy. It authenticates nothing and leaves
// the credential store untouched.
func (c *Channel) IdentityPreview(ctx context.Context, email string) (bool, string, error) {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return false, "", identity.ErrInvalidInput.Clone().WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	user, err := c.resolver.Lookup(ctx, identity.EmailProof{Email: email})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, "", nil
		}
		return false, "", err
	}

	return true, user.DisplayName, nil
}

// ConsumeLink redeems a link token, resolves the canonical user, and
// returns the redirect stored at request time. The consume is atomic, so a
// reused or concurrently opened link fails closed for every caller but
// the first.
func (c *Channel) ConsumeLink(ctx context.Context, token string) (*identity.User, bool, string, error) {
	cred, err := c.store.Consume(ctx, credentials.KindMagicLink, token)
	if err != nil {
		return nil, false, "", err
	}

	if cred.Expired(c.now()) {
		return nil, false, "", identity.ErrCredentialExpired
	}

	email, err := c.keys.Open(cred.SealedDestination)
	if err != nil {
		return nil, false, "", errors.Wrap(err, errors.CategoryInternal, "failed to open destination")
	}

	user, created, err := c.resolver.Resolve(ctx, identity.EmailProof{Email: email})
	if err != nil {
		return nil, false, "", err
	}

	return user, created, cred.Payload[payloadRedirect], nil
}
