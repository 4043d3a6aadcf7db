package otp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/encorehq/go-identity"
	"github.com/encorehq/go-identity/credentials"
)

var testKeys = credentials.Keys{
	HMACKey:       []byte("test-hmac-key"),
	EncryptionKey: []byte("0123456789abcdef0123456789abcdef"),
}

var codePattern = regexp.MustCompile(`\d{6}`)

type stubUsers struct {
	mu      sync.Mutex
	byPhone map[string]*identity.User
	byEmail map[string]*identity.User
	logins  int
}

func newStubUsers() *stubUsers {
	return &stubUsers{
		byPhone: map[string]*identity.User{},
		byEmail: map[string]*identity.User{},
	}
}

func (s *stubUsers) FindByPhone(ctx context.Context, phone string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byPhone[phone]; ok {
		return user, nil
	}
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

	if record.Phone != "" {
		if _, ok := s.byPhone[record.Phone]; ok {
			return nil, errors.New("duplicate key value violates unique constraint")
		}
		s.byPhone[record.Phone] = record
	}
	if record.Email != "" {
		if _, ok := s.byEmail[record.Email]; ok {
			return nil, errors.New("duplicate key value violates unique constraint")
		}
		s.byEmail[record.Email] = record
	}

	return record, nil
}

func (s *stubUsers) TrackSucccessfulLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logins++
	return nil
}

type stubNotifier struct {
	mu           sync.Mutex
	destinations []string
	bodies       []string
	err          error
}

func (s *stubNotifier) Send(ctx context.Context, destination, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.destinations = append(s.destinations, destination)
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *stubNotifier) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bodies) == 0 {
		return ""
	}
	return codePattern.FindString(s.bodies[len(s.bodies)-1])
}

func newTestChannel(opts ...ChannelOption) (*Channel, *stubUsers, *stubNotifier) {
	users := newStubUsers()
	notifier := &stubNotifier{}

	channel := NewChannel(
		credentials.NewMemoryStore(),
		credentials.NewMemoryLimiter(),
		identity.NewUserResolver(users, nil),
		notifier,
		testKeys,
		opts...,
	)

	return channel, users, notifier
}

func TestRequestAndVerifyCode(t *testing.T) {
	ctx := context.Background()
	channel, users, notifier := newTestChannel()

	token, err := channel.RequestCode(ctx, "+44 7700 900123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.Equal(t, []string{"+447700900123"}, notifier.destinations)

	code := notifier.lastCode()
	require.Len(t, code, 6)

	user, created, err := channel.VerifyCode(ctx, token, code)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "+447700900123", user.Phone)
	assert.True(t, user.HasVerifiedContact())

	t.Run("second login reuses the user", func(t *testing.T) {
		token, err := channel.RequestCode(ctx, "+447700900123")
		require.NoError(t, err)

		again, created, err := channel.VerifyCode(ctx, token, notifier.lastCode())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Same(t, user, again)
		assert.Equal(t, 1, users.logins)
	})
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	channel, _, notifier := newTestChannel()

	token, err := channel.RequestCode(ctx, "+447700900123")
	require.NoError(t, err)
	code := notifier.lastCode()

	_, _, err = channel.VerifyCode(ctx, token, code)
	require.NoError(t, err)

	_, _, err = channel.VerifyCode(ctx, token, code)
	require.Error(t, err)
	assert.True(t, identity.IsCredentialNotFound(err))
}

func TestVerifyCodeMismatchLeavesCredential(t *testing.T) {
	ctx := context.Background()
	channel, _, notifier := newTestChannel()

	token, err := channel.RequestCode(ctx, "+447700900123")
	require.NoError(t, err)

	code := notifier.lastCode()
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, _, err = channel.VerifyCode(ctx, token, wrong)
	require.Error(t, err)
	assert.True(t, identity.IsCredentialError(err))

	// a typo must not burn the credential
	_, _, err = channel.VerifyCode(ctx, token, code)
	assert.NoError(t, err)
}

func TestVerifyCodeExpired(t *testing.T) {
	ctx := context.Background()

	now := time.Now()
	channel, _, notifier := newTestChannel(WithClock(func() time.Time { return now }))

	token, err := channel.RequestCode(ctx, "+447700900123")
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)

	_, _, err = channel.VerifyCode(ctx, token, notifier.lastCode())
	require.Error(t, err)
	assert.True(t, identity.IsCredentialError(err))

	// expired credentials never come back
	_, _, err = channel.VerifyCode(ctx, token, notifier.lastCode())
	require.Error(t, err)
}

func TestVerifyCodeConcurrentExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	channel, _, notifier := newTestChannel()

	token, err := channel.RequestCode(ctx, "+447700900123")
	require.NoError(t, err)
	code := notifier.lastCode()

	const callers = 8

	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, _, err := channel.VerifyCode(ctx, token, code); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestRequestCodeInvalidPhone(t *testing.T) {
	ctx := context.Background()
	channel, _, _ := newTestChannel()

	_, err := channel.RequestCode(ctx, "447700900123")
	require.Error(t, err)
	assert.True(t, identity.IsInvalidInput(err))
}

func TestRequestCodeThrottled(t *testing.T) {
	ctx := context.Background()
	channel, _, _ := newTestChannel()

	for i := 0; i < credentials.DefaultSendLimit; i++ {
		_, err := channel.RequestCode(ctx, "+447700900123")
		require.NoError(t, err)
	}

	_, err := channel.RequestCode(ctx, "+447700900123")
	require.Error(t, err)
	assert.True(t, identity.IsTooManyRequests(err))

	t.Run("other destinations still pass", func(t *testing.T) {
		_, err := channel.RequestCode(ctx, "+14155552671")
		assert.NoError(t, err)
	})
}

func TestRequestCodeDeliveryFailureKeepsCredential(t *testing.T) {
	ctx := context.Background()
	channel, _, notifier := newTestChannel()
	notifier.err = errors.New("gateway unavailable")

	token, err := channel.RequestCode(ctx, "+447700900123")
	require.Error(t, err)
	require.NotEmpty(t, token)

	// the stored credential survives the failed send
	cred, getErr := channel.store.Get(ctx, credentials.KindOTP, token)
	require.NoError(t, getErr)
	assert.Equal(t, credentials.KindOTP, cred.Kind)
}
