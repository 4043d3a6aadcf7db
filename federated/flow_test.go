package federated

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/encorehq/go-identity"
	"github.com/encorehq/go-identity/credentials"
)

type stubUsers struct {
	mu      sync.Mutex
	byEmail map[string]*identity.User
	logins  int
}

func newStubUsers() *stubUsers {
	return &stubUsers{byEmail: map[string]*identity.User{}}
}

func (s *stubUsers) FindByPhone(ctx context.Context, phone string) (*identity.User, error) {
	return nil, repository.NewRecordNotFound()
}

func (s *stubUsers) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (s *stubUsers) Create(ctx context.Context, record *identity.User, criteria ...repository.InsertCriteria) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[record.Email]; ok {
		return nil, errors.New("duplicate key value violates unique constraint")
	}
	s.byEmail[record.Email] = record
	return record, nil
}

func (s *stubUsers) TrackSucccessfulLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logins++
	return nil
}

type stubProvider struct {
	name          string
	claims        *Claims
	exchangeErr   error
	exchangeCalls int
	lastState     string
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) AuthCodeURL(state string) string {
	p.lastState = state
	return "https://auth.example/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*Claims, error) {
	p.exchangeCalls++
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.claims, nil
}

func newTestFlow(provider *stubProvider, opts ...FlowOption) (*Flow, *stubUsers) {
	users := newStubUsers()

	flow := NewFlow(
		credentials.NewMemoryStore(),
		identity.NewUserResolver(users, nil),
		[]Provider{provider},
		opts...,
	)

	return flow, users
}

func TestInitiateAndCallback(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name: "google",
		claims: &Claims{
			Subject:       "google-sub-1",
			Email:         "mick@example.com",
			EmailVerified: true,
			Name:          "Mick",
			AvatarURL:     "https://img.example/mick.png",
		},
	}

	flow, _ := newTestFlow(provider)

	authURL, err := flow.Initiate(ctx, "google", "/bands/stones")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, "https://auth.example/authorize"))
	require.NotEmpty(t, provider.lastState)

	user, created, redirect, err := flow.Callback(ctx, provider.lastState, "auth-code")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "mick@example.com", user.Email)
	assert.Equal(t, "Mick", user.DisplayName)
	assert.Equal(t, "/bands/stones", redirect)
	assert.Equal(t, 1, provider.exchangeCalls)
}

func TestCallbackUnknownStateNeverCallsProvider(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{name: "google"}
	flow, _ := newTestFlow(provider)

	_, _, _, err := flow.Callback(ctx, "forged-state", "auth-code")
	require.Error(t, err)
	assert.Equal(t, identity.RedirectCodeInvalidState, identity.RedirectCode(err))
	assert.Equal(t, 0, provider.exchangeCalls)
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name: "google",
		claims: &Claims{
			Subject:       "google-sub-1",
			Email:         "mick@example.com",
			EmailVerified: true,
		},
	}
	flow, _ := newTestFlow(provider)

	_, err := flow.Initiate(ctx, "google", "")
	require.NoError(t, err)

	_, _, _, err = flow.Callback(ctx, provider.lastState, "auth-code")
	require.NoError(t, err)

	// a replayed callback consumes nothing and reaches no provider
	_, _, _, err = flow.Callback(ctx, provider.lastState, "auth-code")
	require.Error(t, err)
	assert.Equal(t, identity.RedirectCodeInvalidState, identity.RedirectCode(err))
	assert.Equal(t, 1, provider.exchangeCalls)
}

func TestCallbackExpiredState(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{name: "google"}

	now := time.Now()
	flow, _ := newTestFlow(provider, WithClock(func() time.Time { return now }))

	_, err := flow.Initiate(ctx, "google", "")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)

	_, _, _, err = flow.Callback(ctx, provider.lastState, "auth-code")
	require.Error(t, err)
	assert.Equal(t, identity.RedirectCodeInvalidState, identity.RedirectCode(err))
	assert.Equal(t, 0, provider.exchangeCalls)
}

func TestCallbackExchangeFailure(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name:        "google",
		exchangeErr: errors.New("invalid_grant"),
	}
	flow, _ := newTestFlow(provider)

	_, err := flow.Initiate(ctx, "google", "")
	require.NoError(t, err)

	_, _, _, err = flow.Callback(ctx, provider.lastState, "bad-code")
	require.Error(t, err)
	assert.Equal(t, identity.RedirectCodeProviderError, identity.RedirectCode(err))
}

func TestCallbackRejectsUnverifiedEmail(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name: "google",
		claims: &Claims{
			Subject: "google-sub-1",
			Email:   "mick@example.com",
		},
	}
	flow, users := newTestFlow(provider)

	_, err := flow.Initiate(ctx, "google", "")
	require.NoError(t, err)

	_, _, _, err = flow.Callback(ctx, provider.lastState, "auth-code")
	require.Error(t, err)
	assert.Empty(t, users.byEmail)
}

func TestCallbackResolvesExistingEmailUser(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name: "google",
		claims: &Claims{
			Subject:       "google-sub-1",
			Email:         "mick@example.com",
			EmailVerified: true,
		},
	}
	flow, users := newTestFlow(provider)

	// the user first signed in over the email channel
	existing := &identity.User{Email: "mick@example.com", Username: "mick"}
	users.byEmail["mick@example.com"] = existing

	_, err := flow.Initiate(ctx, "google", "")
	require.NoError(t, err)

	user, created, _, err := flow.Callback(ctx, provider.lastState, "auth-code")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, existing, user)
	assert.Equal(t, 1, users.logins)
}

func TestInitiateUnknownProvider(t *testing.T) {
	ctx := context.Background()
	flow, _ := newTestFlow(&stubProvider{name: "google"})

	_, err := flow.Initiate(ctx, "myspace", "")
	require.Error(t, err)
	assert.True(t, identity.IsInvalidInput(err))
}
