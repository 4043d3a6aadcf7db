package identity

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

// RouteRegistrar captures the router methods used by the controllers.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController serves the identity surface: contact preview, the current
// user, profile completion, account deletion, and logout. It never returns
// membership data; that lives behind its own controller and store.
type HTTPController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Sessions *SessionIssuer
	Config   Config
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in identity controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in identity controller...")
	}

	return c
}

func WithController(repo RepositoryManager, sessions *SessionIssuer, cfg Config) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Repo = repo
		c.Sessions = sessions
		c.Config = cfg
		return c
	}
}

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Logger = logger
		return c
	}
}

// RegisterRoutes registers the identity routes.
func (a *HTTPController) RegisterRoutes(app RouteRegistrar) {
	guard := a.Sessions.RequireSession(true)

	app.Post("/auth/check-identity", a.CheckIdentity)
	app.Post("/auth/logout", a.Logout)
	app.Get("/api/me", a.Me, guard)
	app.Patch("/api/me", a.UpdateMe, guard)
	app.Delete("/api/me", a.DeleteMe, guard)
}

// CheckIdentityRequest payload: one of email or phone.
type CheckIdentityRequest struct {
	Email string `form:"email" json:"email"`
	Phone string `form:"phone" json:"phone"`
}

// Validate will run validation rules
func (r CheckIdentityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required.When(r.Phone == "").Error("email or phone is required"),
			is.Email,
		),
	)
}

// CheckIdentity reports whether a contact resolves to an existing user,
// with the display name for a tailored welcome. It performs no
// authentication and touches no credentials.
func (a *HTTPController) CheckIdentity(ctx router.Context) error {
	payload := new(CheckIdentityRequest)

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
		fmt.Println("======= CHECK IDENTITY ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=============================")
	}

	var user *User
	var err error

	if payload.Email != "" {
		user, err = a.Repo.Users().FindByEmail(ctx.Context(), payload.Email)
	} else {
		phone, perr := NormalizePhone(payload.Phone)
		if perr != nil {
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "invalid phone number",
			})
		}
		user, err = a.Repo.Users().FindByPhone(ctx.Context(), phone)
	}

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ctx.JSON(router.StatusOK, map[string]any{
				"exists": false,
			})
		}
		a.Logger.Error("check identity lookup: %v", err)
		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "lookup failed",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"exists":       true,
		"display_name": user.DisplayName,
	})
}

// Me returns the current user record. User only: membership data has its
// own endpoint behind its own service boundary.
func (a *HTTPController) Me(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return a.userError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

// UpdateMeRequest is the profile completion payload
type UpdateMeRequest struct {
	DisplayName string `form:"display_name" json:"display_name"`
	AvatarURL   string `form:"avatar_url" json:"avatar_url"`
	Instrument  string `form:"instrument" json:"instrument"`
	Email       string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r UpdateMeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.Length(1, 200)),
		validation.Field(&r.AvatarURL, is.URL),
		validation.Field(&r.Instrument, validation.Length(1, 100)),
		validation.Field(&r.Email, is.Email),
	)
}

// UpdateMe runs the profile completion flow.
func (a *HTTPController) UpdateMe(ctx router.Context) error {
	session, err := SessionFromContext(ctx, a.Config.GetContextKey())
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	payload := new(UpdateMeRequest)
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

	id, err := session.GetUserUUID()
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	user, err := a.Repo.Users().CompleteProfile(ctx.Context(), id, ProfileUpdate{
		DisplayName: payload.DisplayName,
		AvatarURL:   payload.AvatarURL,
		Instrument:  payload.Instrument,
		Email:       payload.Email,
	})
	if err != nil {
		a.Logger.Error("profile update: %v", err)
		return a.userError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

// DeleteMe performs explicit account deletion, cascading memberships.
func (a *HTTPController) DeleteMe(ctx router.Context) error {
	session, err := SessionFromContext(ctx, a.Config.GetContextKey())
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	id, err := session.GetUserUUID()
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	err = a.Repo.RunInTx(ctx.Context(), nil, func(c context.Context, tx bun.Tx) error {
		return a.Repo.Users().DeleteAccountTx(c, tx, id)
	})
	if err != nil {
		a.Logger.Error("account deletion: %v", err)
		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "deletion failed",
		})
	}

	a.Sessions.Revoke(ctx)

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "deleted",
	})
}

// Logout clears the session cookie.
func (a *HTTPController) Logout(ctx router.Context) error {
	a.Sessions.Revoke(ctx)
	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "logged_out",
	})
}

func (a *HTTPController) currentUser(ctx router.Context) (*User, error) {
	session, err := SessionFromContext(ctx, a.Config.GetContextKey())
	if err != nil {
		return nil, err
	}

	return a.Repo.Users().GetByIdentifier(ctx.Context(), session.GetUserID())
}

func (a *HTTPController) userError(ctx router.Context, err error) error {
	if repository.IsRecordNotFound(err) {
		return ctx.JSON(router.StatusNotFound, map[string]string{"error": "not found"})
	}
	return ctx.JSON(fiber.StatusInternalServerError, map[string]string{"error": "internal error"})
}
