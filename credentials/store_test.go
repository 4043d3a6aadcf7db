package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/encorehq/go-identity"
)

func newTestCredential(kind Kind, ttl time.Duration) *Credential {
	now := time.Now()
	return &Credential{
		Token:     NewToken(),
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := newTestCredential(KindOTP, OTPTTL)
	cred.DestinationHash = "hash-1"
	cred.Payload = map[string]string{"redirect": "/after"}

	require.NoError(t, store.Put(ctx, cred))

	t.Run("get does not consume", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			got, err := store.Get(ctx, KindOTP, cred.Token)
			require.NoError(t, err)
			assert.Equal(t, "hash-1", got.DestinationHash)
			assert.Equal(t, "/after", got.Payload["redirect"])
		}
	})

	t.Run("kinds are namespaced", func(t *testing.T) {
		_, err := store.Get(ctx, KindMagicLink, cred.Token)
		assert.True(t, identity.IsCredentialNotFound(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := store.Get(ctx, KindOTP, "no-such-token")
		assert.True(t, identity.IsCredentialNotFound(err))
	})

	t.Run("empty token is rejected on put", func(t *testing.T) {
		assert.Error(t, store.Put(ctx, &Credential{Kind: KindOTP}))
	})
}

func TestMemoryStoreConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := newTestCredential(KindMagicLink, MagicLinkTTL)
	require.NoError(t, store.Put(ctx, cred))

	got, err := store.Consume(ctx, KindMagicLink, cred.Token)
	require.NoError(t, err)
	assert.Equal(t, cred.Token, got.Token)

	_, err = store.Consume(ctx, KindMagicLink, cred.Token)
	assert.True(t, identity.IsCredentialNotFound(err))

	_, err = store.Get(ctx, KindMagicLink, cred.Token)
	assert.True(t, identity.IsCredentialNotFound(err))
}

func TestMemoryStoreConcurrentConsumeExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := newTestCredential(KindOTP, OTPTTL)
	require.NoError(t, store.Put(ctx, cred))

	const callers = 32

	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.Consume(ctx, KindOTP, cred.Token); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestMemoryStoreExpiryGrace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.now = func() time.Time { return now }

	cred := newTestCredential(KindOTP, OTPTTL)
	require.NoError(t, store.Put(ctx, cred))

	t.Run("expired record stays readable within the grace window", func(t *testing.T) {
		now = cred.ExpiresAt.Add(time.Minute)

		got, err := store.Get(ctx, KindOTP, cred.Token)
		require.NoError(t, err)
		assert.True(t, got.Expired(now))
	})

	t.Run("past the grace window the record is gone", func(t *testing.T) {
		now = cred.ExpiresAt.Add(expiryGrace + time.Minute)

		_, err := store.Get(ctx, KindOTP, cred.Token)
		assert.True(t, identity.IsCredentialNotFound(err))
	})
}
