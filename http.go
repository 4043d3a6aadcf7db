package identity

import (
	stderrors "errors"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// SessionIssuer mints the session cookie after a channel proves an
// identity, and validates it on later requests. It exposes the user id and
// display fields only; membership data is a different service boundary and
// must never be reachable from here.
type SessionIssuer struct {
	tokens         TokenService
	cfg            Config
	cookieDuration time.Duration
	Logger         Logger
}

func NewSessionIssuer(tokens TokenService, cfg Config) *SessionIssuer {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	return &SessionIssuer{
		tokens:         tokens,
		cfg:            cfg,
		cookieDuration: cookieDuration,
		Logger:         defLogger{},
	}
}

func (s *SessionIssuer) GetCookieDuration() time.Duration {
	return s.cookieDuration
}

// Issue signs a session token for the identity and writes the cookie.
func (s *SessionIssuer) Issue(ctx router.Context, identity Identity) error {
	token, err := s.tokens.Generate(identity)
	if err != nil {
		s.Logger.Error("session issue error: %s", err)
		return err
	}

	s.setCookieToken(ctx, token, s.cookieDuration)
	return nil
}

// Revoke clears the session cookie.
func (s *SessionIssuer) Revoke(ctx router.Context) {
	s.cookieDel(ctx, s.cfg.GetContextKey())
}

// SessionFromRequest validates the session cookie and returns the session,
// or ErrSessionInvalid/ErrSessionExpired.
func (s *SessionIssuer) SessionFromRequest(ctx router.Context) (*SessionObject, error) {
	cookie := ctx.Cookies(s.cfg.GetContextKey())
	if cookie == "" {
		return nil, ErrSessionInvalid
	}

	claims, err := s.tokens.Validate(cookie)
	if err != nil {
		return nil, err
	}

	return SessionFromClaims(claims)
}

// RequireSession guards a route group. On failure, API routes get a bare
// 401 and page routes a redirect to the login surface without detail.
func (s *SessionIssuer) RequireSession(api bool) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, err := s.SessionFromRequest(ctx)
			if err != nil {
				var richErr *errors.Error
				if stderrors.As(err, &richErr) {
					s.Logger.Debug("session rejected: %s", richErr.TextCode)
				}

				if api {
					return ctx.JSON(router.StatusUnauthorized, map[string]string{
						"error": "unauthorized",
					})
				}

				return ctx.Redirect(s.cfg.GetLoginRoute(), router.StatusSeeOther)
			}

			ctx.Locals(s.cfg.GetContextKey(), session)
			return hf(ctx)
		}
	}
}

// SessionFromContext returns the session stashed by RequireSession.
func SessionFromContext(ctx router.Context, key string) (*SessionObject, error) {
	val := ctx.Locals(key)
	if val == nil {
		return nil, ErrSessionInvalid
	}

	session, ok := val.(*SessionObject)
	if !ok || session == nil {
		return nil, ErrSessionInvalid
	}

	return session, nil
}

func (s *SessionIssuer) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     s.cfg.GetContextKey(),
		Value:    val,
		Path:     "/",
		Domain:   s.cfg.GetCookieDomain(),
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (s *SessionIssuer) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.GetCookieDomain(),
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}
