package credentials

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-errors"

	identity "github.com/encorehq/go-identity"
)

// expiryGrace keeps a record readable after its validity window so
// verification can report expired instead of not found. Past the grace
// window redis drops the key and the two collapse, which is still a closed
// failure.
const expiryGrace = time.Hour

// RedisStore implements Store on a shared redis, making credentials
// visible to every compute instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "cred",
	}
}

func (s *RedisStore) key(kind Kind, token string) string {
	return s.prefix + ":" + string(kind) + ":" + token
}

func (s *RedisStore) Put(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.Token == "" {
		return errors.New("credential requires a token", errors.CategoryBadInput)
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode credential")
	}

	ttl := time.Until(cred.ExpiresAt) + expiryGrace

	if err := s.client.Set(ctx, s.key(cred.Kind, cred.Token), raw, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store credential")
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, kind Kind, token string) (*Credential, error) {
	raw, err := s.client.Get(ctx, s.key(kind, token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, identity.ErrCredentialNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read credential")
	}

	return decodeCredential(raw)
}

// Consume removes the record with GETDEL: redis executes it atomically, so
// for one token exactly one caller across all instances gets the value.
func (s *RedisStore) Consume(ctx context.Context, kind Kind, token string) (*Credential, error) {
	raw, err := s.client.GetDel(ctx, s.key(kind, token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, identity.ErrCredentialNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume credential")
	}

	return decodeCredential(raw)
}

func decodeCredential(raw []byte) (*Credential, error) {
	cred := &Credential{}
	if err := json.Unmarshal(raw, cred); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode credential")
	}
	return cred, nil
}
