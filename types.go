package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetUsername() string
	GetEmail() string
	GetIssuer() string
	GetIssuedAt() *time.Time
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// TokenService mints and validates session tokens
type TokenService interface {
	Generate(identity Identity) (string, error)
	Validate(token string) (AuthClaims, error)
}

// Notifier delivers a message to a destination (phone number or email
// address) out of band. One attempt per call; retries belong to the caller.
type Notifier interface {
	Send(ctx context.Context, destination, body string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetCookieDomain() string
	GetBaseURL() string
	GetLoginRoute() string
	GetPostAuthRedirect() string
}

// NewDefaultLogger returns the stdout logger used when none is provided.
func NewDefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
