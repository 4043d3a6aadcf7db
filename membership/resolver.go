package membership

import (
	"context"

	"github.com/google/uuid"

	identity "github.com/encorehq/go-identity"
)

// View is a membership with its profile resolved against the user row.
// Each field carries an Overridden flag so clients can tell a per-group
// value from an inherited one.
type View struct {
	MembershipID uuid.UUID                 `json:"membership_id"`
	ArtistID     uuid.UUID                 `json:"artist_id"`
	ArtistName   string                    `json:"artist_name,omitempty"`
	ArtistType   identity.ArtistType       `json:"artist_type,omitempty"`
	Kind         identity.MembershipKind   `json:"kind"`
	Role         identity.MembershipRole   `json:"membership_role"`
	Status       identity.MembershipStatus `json:"status"`

	DisplayName           string `json:"display_name,omitempty"`
	DisplayNameOverridden bool   `json:"display_name_overridden"`
	AvatarURL             string `json:"avatar_url,omitempty"`
	AvatarURLOverridden   bool   `json:"avatar_url_overridden"`
	Instrument            string `json:"instrument,omitempty"`
	InstrumentOverridden  bool   `json:"instrument_overridden"`
	Bio                   string `json:"bio,omitempty"`
}

// Resolver materializes membership views. Resolution happens at read
// time: a NULL override column always reflects the user's current profile
// value, never a copy taken when the override was cleared.
type Resolver struct {
	users       identity.Users
	memberships Memberships
}

func NewResolver(users identity.Users, memberships Memberships) *Resolver {
	return &Resolver{
		users:       users,
		memberships: memberships,
	}
}

// ListViews returns the resolved memberships for a user. The user row is
// fetched once and every membership resolves against it.
func (r *Resolver) ListViews(ctx context.Context, userID uuid.UUID) ([]*View, error) {
	user, err := r.users.GetByID(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	records, err := r.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(records))
	for _, record := range records {
		views = append(views, ResolveView(record, user))
	}

	return views, nil
}

// ResolveView resolves one membership against a user row.
func ResolveView(m *identity.Membership, u *identity.User) *View {
	v := &View{
		MembershipID: m.ID,
		ArtistID:     m.ArtistID,
		Kind:         m.Kind,
		Role:         m.Role,
		Status:       m.Status,
	}

	if m.Artist != nil {
		v.ArtistName = m.Artist.Name
		v.ArtistType = m.Artist.Type
	}

	v.DisplayName, v.DisplayNameOverridden = resolveField(m.DisplayName, u.DisplayName)
	v.AvatarURL, v.AvatarURLOverridden = resolveField(m.AvatarURL, u.AvatarURL)
	v.Instrument, v.InstrumentOverridden = resolveField(m.Instrument, u.Instrument)

	// bio has no user level counterpart, it exists per membership only
	if m.Bio != nil {
		v.Bio = *m.Bio
	}

	return v
}

func resolveField(override *string, inherited string) (string, bool) {
	if override != nil {
		return *override, true
	}
	return inherited, false
}
