// Package otp implements the phone + one-time-code channel. A request
// mints a short numeric code, stores its hash under an opaque request
// token, and sends the code to the phone out of band; verification checks
// the code against the stored hash and consumes the credential.
package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"

	identity "github.com/encorehq/go-identity"
	"github.com/encorehq/go-identity/credentials"
)

const codeLength = 6

// sendTimeout bounds the out of band delivery call so a slow SMS gateway
// cannot hold the request open.
const sendTimeout = 10 * time.Second

// Channel drives the OTP flow end to end.
type Channel struct {
	store    credentials.Store
	limiter  credentials.Limiter
	resolver *identity.UserResolver
	notifier identity.Notifier
	keys     credentials.Keys
	logger   identity.Logger
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
	opts ...ChannelOption,
) *Channel {
	c := &Channel{
		store:    store,
		limiter:  limiter,
		resolver: resolver,
		notifier: notifier,
		keys:     keys,
		ttl:      credentials.OTPTTL,
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

// RequestCode mints a code for the phone number, stores it, and delivers
// it. It returns the opaque request token the client must present back
// together with the code. When delivery fails the token is still returned
// alongside ErrDeliveryFailed: the credential stays valid until its own
// expiry, so the caller may retry delivery instead of minting a new code.
func (c *Channel) RequestCode(ctx context.Context, phone string) (string, error) {
	normalized, err := identity.NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	destinationHash := c.keys.HashDestination(normalized)

	if err := c.limiter.Allow(ctx, destinationHash); err != nil {
		return "", err
	}

	code, err := credentials.NewNumericCode(codeLength)
	if err != nil {
		return "", err
	}

	secretHash, err := credentials.HashSecret(code)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash code")
	}

	sealed, err := c.keys.Seal(normalized)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to seal destination")
	}

	now := c.now()
	cred := &credentials.Credential{
		Token:             credentials.NewToken(),
		Kind:              credentials.KindOTP,
		DestinationHash:   destinationHash,
		SealedDestination: sealed,
		SecretHash:        secretHash,
		CreatedAt:         now,
		ExpiresAt:         now.Add(c.ttl),
	}

	if err := c.store.Put(ctx, cred); err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(c.ttl.Minutes()))
	if err := c.notifier.Send(sendCtx, normalized, body); err != nil {
		c.logger.Error("otp delivery to %s failed: %v", destinationHash, err)
		return cred.Token, errors.Wrap(err, errors.CategoryOperation, "message delivery failed").
			WithTextCode(identity.TextCodeDeliveryFailed)
	}

	return cred.Token, nil
}

// VerifyCode checks the code against the credential behind the request
// token, consumes the credential, and resolves the canonical user. A
// mismatching code leaves the credential in place so the user can retype
// it; a successful match consumes atomically so exactly one of two
// concurrent submissions wins.
func (c *Channel) VerifyCode(ctx context.Context, token, code string) (*identity.User, bool, error) {
	cred, err := c.store.Get(ctx, credentials.KindOTP, token)
	if err != nil {
		return nil, false, err
	}

	if cred.Expired(c.now()) {
		return nil, false, identity.ErrCredentialExpired
	}

	ok, err := credentials.CompareSecret(code, cred.SecretHash)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to compare code")
	}

	if !ok {
		return nil, false, identity.ErrCredentialMismatch
	}

	// consume only after the code matched, and let the store arbitrate
	// concurrent winners
	cred, err = c.store.Consume(ctx, credentials.KindOTP, token)
	if err != nil {
		return nil, false, err
	}

	phone, err := c.keys.Open(cred.SealedDestination)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to open destination")
	}

	return c.resolver.Resolve(ctx, identity.PhoneProof{Phone: phone})
}
