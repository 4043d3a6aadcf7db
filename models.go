package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ArtistType is the kind of performing entity
type ArtistType = string

const (
	// ArtistTypeBand is a multi member band
	ArtistTypeBand ArtistType = "band"
	// ArtistTypeSolo is a solo act
	ArtistTypeSolo ArtistType = "solo"
	// ArtistTypeDuo is a two person act
	ArtistTypeDuo ArtistType = "duo"
	// ArtistTypeGroup is a generic group
	ArtistTypeGroup ArtistType = "group"
	// ArtistTypeDJ is a DJ act
	ArtistTypeDJ ArtistType = "dj"
)

// MembershipKind describes the capacity in which a user participates
type MembershipKind = string

const (
	MembershipKindPerformer MembershipKind = "performer"
	MembershipKindAgent     MembershipKind = "agent"
	MembershipKindManager   MembershipKind = "manager"
	MembershipKindGuest     MembershipKind = "guest"
)

// MembershipRole is the user's role within one artist group
type MembershipRole = string

const (
	MembershipRoleOwner   MembershipRole = "owner"
	MembershipRoleAdmin   MembershipRole = "admin"
	MembershipRoleMember  MembershipRole = "member"
	MembershipRolePending MembershipRole = "pending"
)

// MembershipStatus tracks the lifecycle of a membership
type MembershipStatus = string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusInvited  MembershipStatus = "invited"
	MembershipStatusInactive MembershipStatus = "inactive"
)

// User is the canonical user model. All channels resolve to exactly one row
// here; a row exists only for a verified human with at least one verified
// contact method.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Phone           string     `bun:"phone,nullzero,unique" json:"phone,omitempty"`
	Email           string     `bun:"email,nullzero,unique" json:"email,omitempty"`
	Username        string     `bun:"username,notnull,unique" json:"username,omitempty"`
	DisplayName     string     `bun:"display_name" json:"display_name,omitempty"`
	AvatarURL       string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Instrument      string     `bun:"instrument" json:"instrument,omitempty"`
	ProfileComplete bool       `bun:"is_profile_complete" json:"is_profile_complete"`
	LoggedInAt      *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasVerifiedContact reports whether the user satisfies the at-least-one
// verified contact invariant.
func (u *User) HasVerifiedContact() bool {
	return u.Phone != "" || u.Email != ""
}

var _ Identity = (*UserIdentity)(nil)

// UserIdentity adapts a User row to the Identity interface.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser creates the Identity for a user record
func NewIdentityFromUser(user *User) *UserIdentity {
	if user == nil {
		return nil
	}
	return &UserIdentity{user: user}
}

func (i *UserIdentity) ID() string       { return i.user.ID.String() }
func (i *UserIdentity) Username() string { return i.user.Username }
func (i *UserIdentity) Email() string    { return i.user.Email }

// ArtistGroup is a performing entity
type ArtistGroup struct {
	bun.BaseModel `bun:"table:artist_groups,alias:ag"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Type          ArtistType `bun:"artist_type,notnull" json:"artist_type,omitempty"`
	OwnerID       uuid.UUID  `bun:"owner_id,notnull,type:uuid" json:"owner_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Membership joins a User to an ArtistGroup. The profile override columns
// are pointers: NULL means "inherit from the user row at read time", never
// a frozen copy of a past value.
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:mem"`
	ID            uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID        `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ArtistID      uuid.UUID        `bun:"artist_id,notnull,type:uuid" json:"artist_id,omitempty"`
	User          *User            `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Artist        *ArtistGroup     `bun:"rel:belongs-to,join:artist_id=id" json:"artist,omitempty"`
	Kind          MembershipKind   `bun:"kind,notnull" json:"kind,omitempty"`
	Role          MembershipRole   `bun:"membership_role,notnull" json:"membership_role,omitempty"`
	Status        MembershipStatus `bun:"status,notnull" json:"status,omitempty"`
	DisplayName   *string          `bun:"display_name" json:"display_name,omitempty"`
	AvatarURL     *string          `bun:"avatar_url" json:"avatar_url,omitempty"`
	Instrument    *string          `bun:"instrument" json:"instrument,omitempty"`
	Bio           *string          `bun:"bio" json:"bio,omitempty"`
	CreatedAt     *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time       `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time       `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}
