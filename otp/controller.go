package otp

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	identity "github.com/encorehq/go-identity"
)

// Controller exposes the OTP flow over HTTP.
type Controller struct {
	Debug    bool
	Logger   identity.Logger
	Channel  *Channel
	Sessions *identity.SessionIssuer
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
		panic("Missing Channel in otp controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in otp controller...")
	}

	return c
}

func WithController(channel *Channel, sessions *identity.SessionIssuer) ControllerOption {
	return func(c *Controller) *Controller {
		c.Channel = channel
		c.Sessions = sessions
		return c
	}
}

func WithControllerLogger(logger identity.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

// RegisterRoutes registers the phone channel routes.
func (a *Controller) RegisterRoutes(app identity.RouteRegistrar) {
	app.Post("/auth/phone/request-otp", a.RequestOTP)
	app.Post("/auth/phone/verify-otp", a.VerifyOTP)
}

// RequestOTPRequest payload
type RequestOTPRequest struct {
	Phone string `form:"phone" json:"phone"`
}

// Validate will run validation rules
func (r RequestOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required),
	)
}

// RequestOTP mints and delivers a code, returning the request token.
func (a *Controller) RequestOTP(ctx router.Context) error {
	payload := new(RequestOTPRequest)

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
		fmt.Println("======= REQUEST OTP =========")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=============================")
	}

	token, err := a.Channel.RequestCode(ctx.Context(), payload.Phone)
	if err != nil {
		switch {
		case identity.IsInvalidInput(err):
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "invalid phone number",
			})
		case identity.IsTooManyRequests(err):
			return ctx.JSON(fiber.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
		}

		a.Logger.Error("request otp: %v", err)

		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "could not send code",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"request_token": token,
	})
}

// VerifyOTPRequest payload
type VerifyOTPRequest struct {
	RequestToken string `form:"request_token" json:"request_token"`
	Code         string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r VerifyOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RequestToken, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Length(codeLength, codeLength)),
	)
}

// VerifyOTP checks the code and, on success, issues the session cookie.
func (a *Controller) VerifyOTP(ctx router.Context) error {
	payload := new(VerifyOTPRequest)

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

	user, created, err := a.Channel.VerifyCode(ctx.Context(), payload.RequestToken, payload.Code)
	if err != nil {
		if identity.IsCredentialError(err) {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": identity.RedirectCode(err),
			})
		}

		a.Logger.Error("verify otp: %v", err)

		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "verification failed",
		})
	}

	if err := a.Sessions.Issue(ctx, identity.NewIdentityFromUser(user)); err != nil {
		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "could not start session",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":    user,
		"created": created,
	})
}
