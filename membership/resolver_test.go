package membership

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	identity "github.com/encorehq/go-identity"
)

func strptr(s string) *string { return &s }

func testUser() *identity.User {
	return &identity.User{
		ID:          uuid.New(),
		Username:    "keith",
		DisplayName: "Keith Richards",
		AvatarURL:   "https://img.example/keith.png",
		Instrument:  "guitar",
	}
}

func testMembership(user *identity.User) *identity.Membership {
	return &identity.Membership{
		ID:       uuid.New(),
		UserID:   user.ID,
		ArtistID: uuid.New(),
		Artist: &identity.ArtistGroup{
			Name: "The Rolling Stones",
			Type: identity.ArtistTypeBand,
		},
		Kind:   identity.MembershipKindPerformer,
		Role:   identity.MembershipRoleMember,
		Status: identity.MembershipStatusActive,
	}
}

func TestResolveViewInheritsFromUser(t *testing.T) {
	user := testUser()
	member := testMembership(user)

	view := ResolveView(member, user)

	assert.Equal(t, "Keith Richards", view.DisplayName)
	assert.False(t, view.DisplayNameOverridden)
	assert.Equal(t, "https://img.example/keith.png", view.AvatarURL)
	assert.False(t, view.AvatarURLOverridden)
	assert.Equal(t, "guitar", view.Instrument)
	assert.False(t, view.InstrumentOverridden)
	assert.Empty(t, view.Bio)

	assert.Equal(t, "The Rolling Stones", view.ArtistName)
	assert.Equal(t, identity.ArtistTypeBand, view.ArtistType)
}

func TestResolveViewOverridesWin(t *testing.T) {
	user := testUser()
	member := testMembership(user)
	member.DisplayName = strptr("Keef")
	member.Instrument = strptr("bass")
	member.Bio = strptr("Founding member")

	view := ResolveView(member, user)

	assert.Equal(t, "Keef", view.DisplayName)
	assert.True(t, view.DisplayNameOverridden)
	assert.Equal(t, "bass", view.Instrument)
	assert.True(t, view.InstrumentOverridden)
	assert.Equal(t, "Founding member", view.Bio)

	// avatar was never overridden and still inherits
	assert.Equal(t, "https://img.example/keith.png", view.AvatarURL)
	assert.False(t, view.AvatarURLOverridden)
}

func TestResolveViewInheritanceIsLive(t *testing.T) {
	user := testUser()
	member := testMembership(user)

	// the user renames themselves after the membership exists
	user.DisplayName = "K. Richards"

	view := ResolveView(member, user)
	assert.Equal(t, "K. Richards", view.DisplayName)
}

func TestResolveViewClearedOverrideRestoresInheritance(t *testing.T) {
	user := testUser()
	member := testMembership(user)
	member.DisplayName = strptr("Keef")

	view := ResolveView(member, user)
	assert.Equal(t, "Keef", view.DisplayName)

	// clearing the override goes back to the user value, not to a frozen
	// copy of the old override
	member.DisplayName = nil
	user.DisplayName = "K. Richards"

	view = ResolveView(member, user)
	assert.Equal(t, "K. Richards", view.DisplayName)
	assert.False(t, view.DisplayNameOverridden)
}

func TestResolveViewEmptyStringOverrideIsDistinct(t *testing.T) {
	user := testUser()
	member := testMembership(user)
	member.DisplayName = strptr("")

	// an empty override is still an override, not inheritance
	view := ResolveView(member, user)
	assert.Empty(t, view.DisplayName)
	assert.True(t, view.DisplayNameOverridden)
}
