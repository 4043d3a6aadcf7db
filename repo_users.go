package identity

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var DeleteAccountMembershipsSQL = `UPDATE "memberships" AS "mem"
SET
	"deleted_at" = ?
WHERE
	"mem"."deleted_at" IS NULL
AND (
	"mem"."user_id" = ?
);`

type Users interface {
	repository.Repository[*User]

	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	TrackSucccessfulLogin(ctx context.Context, user *User) error
	TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	CompleteProfile(ctx context.Context, id uuid.UUID, profile ProfileUpdate) (*User, error)
	CompleteProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, profile ProfileUpdate) (*User, error)

	DeleteAccount(ctx context.Context, id uuid.UUID) error
	DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

// ProfileUpdate carries the profile completion fields. Empty strings leave
// the stored value untouched.
type ProfileUpdate struct {
	DisplayName string
	AvatarURL   string
	Instrument  string
	Email       string
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return a.FindByPhoneTx(ctx, a.db, phone)
}

func (a *users) FindByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (*User, error) {
	return a.findByColumnTx(ctx, tx, "phone", phone)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.findByColumnTx(ctx, tx, "email", email)
}

func (a *users) findByColumnTx(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	if value == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) TrackSucccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSucccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) CompleteProfile(ctx context.Context, id uuid.UUID, profile ProfileUpdate) (*User, error) {
	return a.CompleteProfileTx(ctx, a.db, id, profile)
}

func (a *users) CompleteProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, profile ProfileUpdate) (*User, error) {
	record := &User{
		ID:              id,
		DisplayName:     profile.DisplayName,
		AvatarURL:       profile.AvatarURL,
		Instrument:      profile.Instrument,
		Email:           profile.Email,
		ProfileComplete: true,
	}

	return a.Repository.UpdateTx(ctx, tx, record,
		repository.UpdateByID(id.String()),
		repository.UpdateSkipZeroValues(),
	)
}

func (a *users) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return a.DeleteAccountTx(ctx, a.db, id)
}

// DeleteAccountTx soft deletes the user and cascades the soft delete to its
// memberships. Run inside a transaction so both land or neither does.
func (a *users) DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	now := time.Now()

	if _, err := tx.NewRaw(DeleteAccountMembershipsSQL, now, id).Exec(ctx); err != nil {
		return err
	}

	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Username == "" {
		record.Username = defaultUsername(record)
	}
}
