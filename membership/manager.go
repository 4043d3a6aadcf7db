package membership

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	identity "github.com/encorehq/go-identity"
)

// Manager exposes the durable membership stores
type Manager interface {
	Artists() Artists
	Memberships() Memberships
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error

	CreateArtistWithOwner(ctx context.Context, ownerID uuid.UUID, artist *identity.ArtistGroup, kind identity.MembershipKind, overrides ProfilePatch) (*identity.ArtistGroup, *identity.Membership, error)
}

type mngr struct {
	db          *bun.DB
	artists     Artists
	memberships Memberships
}

func NewManager(db *bun.DB) Manager {
	return &mngr{
		db:          db,
		artists:     NewArtistsRepository(db),
		memberships: NewMembershipsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.artists == nil {
		return errors.New("repository artists should be initialized")
	}

	if m.memberships == nil {
		return errors.New("repository memberships should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Artists() Artists {
	return m.artists
}

func (m mngr) Memberships() Memberships {
	return m.memberships
}

// CreateArtistWithOwner inserts the artist group and its owner membership
// in one transaction. A failure on either insert rolls back both, so an
// artist group can never exist without an owner. Present override fields
// seed the owner's per-group profile; absent fields stay null and inherit.
func (m mngr) CreateArtistWithOwner(ctx context.Context, ownerID uuid.UUID, artist *identity.ArtistGroup, kind identity.MembershipKind, overrides ProfilePatch) (*identity.ArtistGroup, *identity.Membership, error) {
	if kind == "" {
		kind = identity.MembershipKindPerformer
	}

	var member *identity.Membership

	err := m.RunInTx(ctx, nil, func(c context.Context, tx bun.Tx) error {
		if artist.ID == uuid.Nil {
			artist.ID = uuid.New()
		}
		artist.OwnerID = ownerID

		created, err := m.artists.CreateTx(c, tx, artist)
		if err != nil {
			return err
		}
		artist = created

		member = &identity.Membership{
			ID:          uuid.New(),
			UserID:      ownerID,
			ArtistID:    artist.ID,
			Kind:        kind,
			Role:        identity.MembershipRoleOwner,
			Status:      identity.MembershipStatusActive,
			DisplayName: overrides.DisplayName.Value,
			AvatarURL:   overrides.AvatarURL.Value,
			Instrument:  overrides.Instrument.Value,
			Bio:         overrides.Bio.Value,
		}

		member, err = m.memberships.CreateTx(c, tx, member)
		return err
	})

	if err != nil {
		return nil, nil, err
	}

	return artist, member, nil
}
