package identity

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// AuthClaims represents the structured claims of a session token
type AuthClaims interface {
	Subject() string
	UserID() string
	Username() string
	Email() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. The payload is
// deliberately tiny: user id, two display strings, and timestamps. It must
// stay comfortably under the browser per-cookie byte ceiling, and it must
// never grow an upstream provider token field.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string         `json:"uid,omitempty"`
	Uname    string         `json:"uname,omitempty"`
	Addr     string         `json:"email,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Username returns the display username
func (c *JWTClaims) Username() string {
	return c.Uname
}

// Email returns the display email
func (c *JWTClaims) Email() string {
	return c.Addr
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// forbiddenClaimFields are upstream provider token fields that must never
// ride in a session cookie, both for size and because the session outlives
// any provider token.
var forbiddenClaimFields = []string{
	"access_token",
	"refresh_token",
	"id_token",
	"provider_token",
}

// GuardClaims rejects claims whose serialized form carries a provider token
// field. Checked at signing time so a metadata extension can not smuggle
// one in.
func GuardClaims(claims *JWTClaims) error {
	if claims == nil {
		return errors.New("claims must not be nil", errors.CategoryInternal)
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to serialize claims")
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to inspect claims")
	}

	for _, name := range forbiddenClaimFields {
		if _, found := fields[name]; found {
			return errors.New("claims carry a provider token field", errors.CategoryInternal).
				WithMetadata(map[string]any{"field": name})
		}
		if meta, ok := fields["metadata"].(map[string]any); ok {
			if _, found := meta[name]; found {
				return errors.New("claims metadata carries a provider token field", errors.CategoryInternal).
					WithMetadata(map[string]any{"field": name})
			}
		}
	}

	return nil
}
