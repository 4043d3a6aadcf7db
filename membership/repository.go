// Package membership implements the artist-group side of the system:
// artist groups, the memberships joining users to them, and the read-time
// resolution of per-group profile overrides. It sits behind its own
// service boundary; nothing here is reachable from session issuance.
package membership

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	identity "github.com/encorehq/go-identity"
)

// Artists is the durable store for artist groups.
type Artists interface {
	repository.Repository[*identity.ArtistGroup]
}

// Memberships is the durable store for membership rows.
type Memberships interface {
	repository.Repository[*identity.Membership]

	ListByUser(ctx context.Context, userID uuid.UUID) ([]*identity.Membership, error)
	ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*identity.Membership, error)

	FindByID(ctx context.Context, id uuid.UUID) (*identity.Membership, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.Membership, error)

	UpdateOverrides(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*identity.Membership, error)
	UpdateOverridesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch ProfilePatch) (*identity.Membership, error)
}

type artists struct {
	repository.Repository[*identity.ArtistGroup]
}

func NewArtistsRepository(db *bun.DB) Artists {
	repo := repository.NewRepository[*identity.ArtistGroup](db, repository.ModelHandlers[*identity.ArtistGroup]{
		NewRecord: func() *identity.ArtistGroup { return &identity.ArtistGroup{} },
		GetID: func(a *identity.ArtistGroup) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *identity.ArtistGroup, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &artists{Repository: repo}
}

type memberships struct {
	repository.Repository[*identity.Membership]
	db *bun.DB
}

var (
	_ Memberships = (*memberships)(nil)
)

func NewMembershipsRepository(db *bun.DB) Memberships {
	repo := repository.NewRepository[*identity.Membership](db, repository.ModelHandlers[*identity.Membership]{
		NewRecord: func() *identity.Membership { return &identity.Membership{} },
		GetID: func(m *identity.Membership) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *identity.Membership, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &memberships{
		Repository: repo,
		db:         db,
	}
}

func (a *memberships) ListByUser(ctx context.Context, userID uuid.UUID) ([]*identity.Membership, error) {
	return a.ListByUserTx(ctx, a.db, userID)
}

func (a *memberships) ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*identity.Membership, error) {
	var records []*identity.Membership

	err := tx.NewSelect().
		Model(&records).
		Relation("Artist").
		Where("?TableAlias.user_id = ?", userID).
		Order("mem.created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *memberships) FindByID(ctx context.Context, id uuid.UUID) (*identity.Membership, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *memberships) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.Membership, error) {
	record := &identity.Membership{}

	err := tx.NewSelect().
		Model(record).
		Relation("Artist").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *memberships) UpdateOverrides(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*identity.Membership, error) {
	return a.UpdateOverridesTx(ctx, a.db, id, patch)
}

// UpdateOverridesTx applies only the fields present in the patch. A field
// set to null clears the override, which restores inheritance from the
// user row on the next read. Absent fields stay untouched.
func (a *memberships) UpdateOverridesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch ProfilePatch) (*identity.Membership, error) {
	if patch.Empty() {
		return a.FindByIDTx(ctx, tx, id)
	}

	now := time.Now()
	q := tx.NewUpdate().
		Model((*identity.Membership)(nil)).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL")

	for column, field := range patch.fields() {
		if field.Present {
			q = q.Set(column+" = ?", field.Value)
		}
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return a.FindByIDTx(ctx, tx, id)
}
