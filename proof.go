package identity

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// UserStore is the slice of Users the resolver needs. Kept narrow so
// tests can stand in for the full repository.
type UserStore interface {
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	TrackSucccessfulLogin(ctx context.Context, user *User) error
}

// Proof is a completed proof of identity from one channel. The set of
// implementations is sealed: every channel must go through the same
// resolve-or-create routine so two channels can never mint two users for
// one verified contact.
type Proof interface {
	// Channel names the channel that produced the proof.
	Channel() string
	// contactKey is the namespaced verified contact the proof resolves by.
	contactKey() string
	find(ctx context.Context, users UserStore) (*User, error)
	newUser() *User
}

// PhoneProof is a verified OTP for an E.164 phone number.
type PhoneProof struct {
	Phone string
}

func (p PhoneProof) Channel() string    { return "phone" }
func (p PhoneProof) contactKey() string { return "phone:" + p.Phone }

func (p PhoneProof) find(ctx context.Context, users UserStore) (*User, error) {
	return users.FindByPhone(ctx, p.Phone)
}

func (p PhoneProof) newUser() *User {
	return &User{Phone: p.Phone}
}

// EmailProof is a consumed magic link for a verified email address.
type EmailProof struct {
	Email string
}

func (p EmailProof) Channel() string    { return "email" }
func (p EmailProof) contactKey() string { return "email:" + p.Email }

func (p EmailProof) find(ctx context.Context, users UserStore) (*User, error) {
	return users.FindByEmail(ctx, p.Email)
}

func (p EmailProof) newUser() *User {
	return &User{Email: p.Email}
}

// FederatedProof is a set of verified claims from an identity provider.
// Resolution is by verified email so a user who first signed in by magic
// link lands on the same row when they later use the provider.
type FederatedProof struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

func (p FederatedProof) Channel() string    { return "federated:" + p.Provider }
func (p FederatedProof) contactKey() string { return "email:" + p.Email }

func (p FederatedProof) find(ctx context.Context, users UserStore) (*User, error) {
	return users.FindByEmail(ctx, p.Email)
}

func (p FederatedProof) newUser() *User {
	return &User{
		Email:       p.Email,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}

// UserResolver turns proofs into canonical users.
type UserResolver struct {
	users  UserStore
	logger Logger
}

func NewUserResolver(users UserStore, logger Logger) *UserResolver {
	if logger == nil {
		logger = defLogger{}
	}
	return &UserResolver{users: users, logger: logger}
}

// Lookup reports whether a proof's contact already resolves to a user.
// Read only: no login tracking, no user creation.
func (r *UserResolver) Lookup(ctx context.Context, proof Proof) (*User, error) {
	user, err := proof.find(ctx, r.users)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
	}
	return user, nil
}

// Resolve returns the canonical user for a proof, creating one on first
// authentication. New users get a deterministic id derived from the
// verified contact, so concurrent first logins race onto the same primary
// key and exactly one insert wins; the loser re-reads the winner's row.
func (r *UserResolver) Resolve(ctx context.Context, proof Proof) (*User, bool, error) {
	user, err := proof.find(ctx, r.users)
	if err == nil {
		if err := r.users.TrackSucccessfulLogin(ctx, user); err != nil {
			r.logger.Error("failed to track login for %s: %v", user.ID, err)
		}
		return user, false, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
	}

	record := proof.newUser()
	if id, err := hashid.NewUUID(proof.contactKey()); err == nil {
		record.ID = id
	}

	created, err := r.users.Create(ctx, record)
	if err != nil {
		// lost the insert race: the winner's row is keyed by the same
		// deterministic id, re-read it
		if existing, findErr := proof.find(ctx, r.users); findErr == nil {
			return existing, false, nil
		}
		return nil, false, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}

	r.logger.Info("created user %s via %s channel", created.ID, proof.Channel())

	return created, true, nil
}

func defaultUsername(record *User) string {
	if record.Email != "" && strings.Contains(record.Email, "@") {
		return strings.Split(record.Email, "@")[0]
	}

	if record.Phone != "" {
		return strings.TrimPrefix(record.Phone, "+")
	}

	return record.ID.String()
}
