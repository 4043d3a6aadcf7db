package magiclink

import (
	"fmt"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	identity "github.com/encorehq/go-identity"
)

// Controller exposes the magic link flow over HTTP.
type Controller struct {
	Debug    bool
	Logger   identity.Logger
	Channel  *Channel
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

	if c.Channel == nil {
		panic("Missing Channel in magiclink controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in magiclink controller...")
	}

	if c.Config == nil {
		panic("Missing Config in magiclink controller...")
	}

	return c
}

func WithController(channel *Channel, sessions *identity.SessionIssuer, cfg identity.Config) ControllerOption {
	return func(c *Controller) *Controller {
		c.Channel = channel
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

// RegisterRoutes registers the email channel routes.
func (a *Controller) RegisterRoutes(app identity.RouteRegistrar) {
	app.Post("/auth/email/request-magic", a.RequestMagic)
	app.Post("/auth/email/preview", a.Preview)
	app.Get("/auth/magic/:token", a.ConsumeMagic)
}

// PreviewRequest payload
type PreviewRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r PreviewRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// Preview tells the login surface whether to greet a new or returning
// user. No authentication happens and no credential is created.
func (a *Controller) Preview(ctx router.Context) error {
	payload := new(PreviewRequest)

	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "failed to parse payload",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	known, displayName, err := a.Channel.IdentityPreview(ctx.Context(), payload.Email)
	if err != nil {
		if identity.IsInvalidInput(err) {
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "invalid email address",
			})
		}

		a.Logger.Error("identity preview: %v", err)

		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "lookup failed",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"known":        known,
		"display_name": displayName,
	})
}

// RequestMagicRequest payload
type RequestMagicRequest struct {
	Email    string `form:"email" json:"email"`
	Redirect string `form:"redirect" json:"redirect"`
}

// Validate will run validation rules
func (r RequestMagicRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// RequestMagic mints and mails a sign-in link. The response is the same
// whether or not the address belongs to an existing user.
func (a *Controller) RequestMagic(ctx router.Context) error {
	payload := new(RequestMagicRequest)

	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "failed to parse payload",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	if a.Debug {
		fmt.Println("======= REQUEST MAGIC =======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=============================")
	}

	if _, err := a.Channel.RequestLink(ctx.Context(), payload.Email, payload.Redirect); err != nil {
		switch {
		case identity.IsInvalidInput(err):
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "invalid email address",
			})
		case identity.IsTooManyRequests(err):
			return ctx.JSON(fiber.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
		}

		a.Logger.Error("request magic link: %v", err)

		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "could not send link",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "sent",
	})
}

// ConsumeMagic redeems a link from the email client. Success sets the
// session cookie and redirects into the app; any failure redirects to the
// login surface carrying only a coarse error code.
func (a *Controller) ConsumeMagic(ctx router.Context) error {
	token := ctx.Param("token")
	if token == "" {
		return a.failRedirect(ctx, identity.ErrCredentialNotFound)
	}

	user, created, redirect, err := a.Channel.ConsumeLink(ctx.Context(), token)
	if err != nil {
		if !identity.IsCredentialError(err) {
			a.Logger.Error("consume magic link: %v", err)
		}
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
