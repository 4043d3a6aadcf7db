package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"

	identity "github.com/encorehq/go-identity"
)

// MemoryStore is an in-process Store for tests and single node
// development. It honors the same grace window as the redis store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	cred   *Credential
	dropAt time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: map[string]memoryItem{},
		now:   time.Now,
	}
}

// Len returns the number of stored credentials, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) key(kind Kind, token string) string {
	return string(kind) + ":" + token
}

func (s *MemoryStore) Put(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.Token == "" {
		return errors.New("credential requires a token", errors.CategoryBadInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[s.key(cred.Kind, cred.Token)] = memoryItem{
		cred:   cred,
		dropAt: cred.ExpiresAt.Add(expiryGrace),
	}

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, kind Kind, token string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[s.key(kind, token)]
	if !ok || s.now().After(item.dropAt) {
		return nil, identity.ErrCredentialNotFound
	}

	return item.cred, nil
}

func (s *MemoryStore) Consume(ctx context.Context, kind Kind, token string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(kind, token)

	item, ok := s.items[k]
	if !ok || s.now().After(item.dropAt) {
		return nil, identity.ErrCredentialNotFound
	}

	delete(s.items, k)

	return item.cred, nil
}
