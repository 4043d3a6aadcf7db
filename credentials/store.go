// Package credentials holds the self-expiring single-use proof artifacts:
// phone OTP codes, magic-link tokens, and OAuth state values. Every record
// is keyed by a fresh opaque token, carries its own expiry, and is consumed
// atomically so two concurrent verifications can never both succeed.
package credentials

import (
	"context"
	"time"
)

// Kind discriminates the credential variants sharing the store.
type Kind string

const (
	KindOTP        Kind = "otp"
	KindMagicLink  Kind = "magic"
	KindOAuthState Kind = "oauth_state"
)

// Default validity windows.
const (
	OTPTTL        = 5 * time.Minute
	MagicLinkTTL  = 5 * time.Minute
	OAuthStateTTL = 10 * time.Minute
)

// Credential is a single-use proof artifact. The destination is never
// stored in the clear: DestinationHash is the deterministic HMAC used for
// lookups and throttling, SealedDestination the AES-GCM sealed copy opened
// only to create or resolve the user after a successful verification.
// SecretHash is a bcrypt hash for OTP codes; link and state tokens are
// their own secret and leave it empty.
type Credential struct {
	Token             string            `json:"token"`
	Kind              Kind              `json:"kind"`
	DestinationHash   string            `json:"destination_hash,omitempty"`
	SealedDestination string            `json:"sealed_destination,omitempty"`
	SecretHash        string            `json:"secret_hash,omitempty"`
	Payload           map[string]string `json:"payload,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
}

// Expired reports whether the credential is past its validity window.
func (c *Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Store is the shared, externally visible credential store. Any compute
// instance must be able to consume a credential issued by any other, so
// implementations back onto shared storage, never process memory (the
// in-memory implementation exists for tests and single-node development).
type Store interface {
	// Put writes a credential under its token.
	Put(ctx context.Context, cred *Credential) error

	// Get returns the credential without consuming it. Records are
	// retained for a grace period past expiry so callers can distinguish
	// expired from missing; check Expired before trusting one.
	Get(ctx context.Context, kind Kind, token string) (*Credential, error)

	// Consume removes and returns the credential in one step. For any
	// token, across all instances, exactly one Consume call succeeds;
	// every other call fails with the store's not-found error.
	Consume(ctx context.Context, kind Kind, token string) (*Credential, error)
}
