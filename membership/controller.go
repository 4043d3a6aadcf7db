package membership

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	identity "github.com/encorehq/go-identity"
)

// Controller serves the membership surface. Every route requires a
// session; the session itself never carries membership data, it is read
// fresh here on each request.
type Controller struct {
	Debug    bool
	Logger   identity.Logger
	Manager  Manager
	Resolver *Resolver
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

	if c.Manager == nil {
		panic("Missing Manager in membership controller...")
	}

	if c.Resolver == nil {
		panic("Missing Resolver in membership controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionIssuer in membership controller...")
	}

	if c.Config == nil {
		panic("Missing Config in membership controller...")
	}

	return c
}

func WithController(manager Manager, resolver *Resolver, sessions *identity.SessionIssuer, cfg identity.Config) ControllerOption {
	return func(c *Controller) *Controller {
		c.Manager = manager
		c.Resolver = resolver
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

// RegisterRoutes registers the membership routes behind the session guard.
func (a *Controller) RegisterRoutes(app identity.RouteRegistrar) {
	guard := a.Sessions.RequireSession(true)

	app.Get("/api/memberships/me", a.MyMemberships, guard)
	app.Post("/api/artists", a.CreateArtist, guard)
	app.Patch("/api/memberships/:id/profile", a.UpdateProfile, guard)
}

// MyMemberships returns the caller's memberships with profiles resolved
// against the current user row.
func (a *Controller) MyMemberships(ctx router.Context) error {
	userID, err := a.sessionUserID(ctx)
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	views, err := a.Resolver.ListViews(ctx.Context(), userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ctx.JSON(router.StatusNotFound, map[string]string{"error": "not found"})
		}

		a.Logger.Error("list memberships: %v", err)

		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"memberships": views,
	})
}

// CreateArtistRequest payload. Profile seeds the owner membership's
// override fields; anything omitted inherits from the user row.
type CreateArtistRequest struct {
	Name    string       `form:"name" json:"name"`
	Type    string       `form:"artist_type" json:"artist_type"`
	Kind    string       `form:"kind" json:"kind"`
	Profile ProfilePatch `form:"profile" json:"profile"`
}

// Validate will run validation rules
func (r CreateArtistRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Type, validation.Required, validation.In(
			identity.ArtistTypeBand,
			identity.ArtistTypeSolo,
			identity.ArtistTypeDuo,
			identity.ArtistTypeGroup,
			identity.ArtistTypeDJ,
		)),
		validation.Field(&r.Kind, validation.In(
			identity.MembershipKindPerformer,
			identity.MembershipKindAgent,
			identity.MembershipKindManager,
		)),
		validation.Field(&r.Profile),
	)
}

// CreateArtist creates an artist group owned by the caller, with the
// owner membership in the same transaction.
func (a *Controller) CreateArtist(ctx router.Context) error {
	userID, err := a.sessionUserID(ctx)
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	payload := new(CreateArtistRequest)

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
		fmt.Println("======= CREATE ARTIST =======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=============================")
	}

	artist, member, err := a.Manager.CreateArtistWithOwner(ctx.Context(), userID, &identity.ArtistGroup{
		Name: payload.Name,
		Type: payload.Type,
	}, payload.Kind, payload.Profile)
	if err != nil {
		a.Logger.Error("create artist: %v", err)
		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "could not create artist",
		})
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"artist":     artist,
		"membership": member,
	})
}

// UpdateProfile patches the caller's per-group profile overrides. Null
// clears an override back to inheritance; absent fields are untouched.
func (a *Controller) UpdateProfile(ctx router.Context) error {
	userID, err := a.sessionUserID(ctx)
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	membershipID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "invalid membership id",
		})
	}

	patch := ProfilePatch{}
	if err := ctx.Bind(&patch); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "failed to parse payload",
		})
	}

	if err := patch.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	record, err := a.Manager.Memberships().FindByID(ctx.Context(), membershipID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ctx.JSON(router.StatusNotFound, map[string]string{"error": "not found"})
		}

		a.Logger.Error("load membership: %v", err)

		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}

	// members edit their own membership profile only
	if record.UserID != userID {
		return ctx.JSON(router.StatusForbidden, map[string]string{"error": "forbidden"})
	}

	updated, err := a.Manager.Memberships().UpdateOverrides(ctx.Context(), membershipID, patch)
	if err != nil {
		a.Logger.Error("update membership profile: %v", err)
		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}

	user, err := a.Resolver.users.GetByID(ctx.Context(), userID.String())
	if err != nil {
		return ctx.JSON(router.StatusOK, map[string]any{
			"membership": updated,
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"membership": ResolveView(updated, user),
	})
}

func (a *Controller) sessionUserID(ctx router.Context) (uuid.UUID, error) {
	session, err := identity.SessionFromContext(ctx, a.Config.GetContextKey())
	if err != nil {
		return uuid.Nil, err
	}

	return session.GetUserUUID()
}
