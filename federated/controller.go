package federated

import (
	"net/http"
	"net/url"

	"github.com/goliatone/go-router"

	identity "github.com/encorehq/go-identity"
)

// Controller exposes the federated flow over HTTP.
type Controller struct {
	Debug    bool
	Logger   identity.Logger
	Flow     *Flow
	Sessions *identity.SessionIssuer
	Config   identity.Config
}

type ControllerOption func(*Controller) *Controller

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger: identity.NewDefaultLogger(),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flow == nil {
		panic("Missing Flow in federated controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in federated controller...")
	}

	if c.Config == nil {
		panic("Missing Config in federated controller...")
	}

	return c
}

func WithController(flow *Flow, sessions *identity.SessionIssuer, cfg identity.Config) ControllerOption {
	return func(c *Controller) *Controller {
		c.Flow = flow
		c.Sessions = sessions
		c.Config = cfg
		return c
	}
}

func WithControllerLogger(logger identity.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

// RegisterRoutes registers the federated channel routes. The callback
// route goes first so it never matches as a provider name.
func (a *Controller) RegisterRoutes(app identity.RouteRegistrar) {
	app.Get("/auth/federated/callback", a.Callback)
	app.Get("/auth/federated/:provider", a.Begin)
}

// Begin starts the provider flow and redirects to the authorization URL.
func (a *Controller) Begin(ctx router.Context) error {
	providerName := ctx.Param("provider")
	redirect := ctx.Query("redirect")

	authURL, err := a.Flow.Initiate(ctx.Context(), providerName, redirect)
	if err != nil {
		a.Logger.Error("initiate %s flow: %v", providerName, err)
		return a.failRedirect(ctx, err)
	}

	return ctx.Redirect(authURL, http.StatusTemporaryRedirect)
}

// Callback completes the provider flow. Success sets the session cookie
// and redirects into the app; any failure redirects to the login surface
// carrying only a coarse error code.
func (a *Controller) Callback(ctx router.Context) error {
	if errCode := ctx.Query("error"); errCode != "" {
		a.Logger.Debug("provider returned error: %s", errCode)
		return a.failRedirect(ctx, identity.ErrProviderExchangeFailed)
	}

	user, created, redirect, err := a.Flow.Callback(ctx.Context(), ctx.Query("state"), ctx.Query("code"))
	if err != nil {
		return a.failRedirect(ctx, err)
	}

	if err := a.Sessions.Issue(ctx, identity.NewIdentityFromUser(user)); err != nil {
		return a.failRedirect(ctx, err)
	}

	if redirect == "" {
		redirect = a.Config.GetPostAuthRedirect()
	}

	if created {
		redirect = appendQueryParam(redirect, "new_user", "true")
	}

	return ctx.Redirect(redirect, http.StatusTemporaryRedirect)
}

func (a *Controller) failRedirect(ctx router.Context, err error) error {
	target := appendQueryParam(a.Config.GetLoginRoute(), "error", identity.RedirectCode(err))
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

func appendQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()

	return u.String()
}
