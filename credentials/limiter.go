package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-errors"

	identity "github.com/encorehq/go-identity"
)

const (
	// DefaultSendLimit caps credential sends per destination per window.
	DefaultSendLimit = 3
	// DefaultSendWindow is the fixed window the limit applies to.
	DefaultSendWindow = 10 * time.Minute
)

// Limiter throttles credential sends per destination. Allow returns a
// rate limit error once the destination exhausts its window.
type Limiter interface {
	Allow(ctx context.Context, destinationHash string) error
}

// RedisLimiter counts sends in a fixed window keyed by destination hash.
// INCR followed by a first-hit EXPIRE keeps the counter shared across
// instances without any coordination beyond redis itself.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  DefaultSendLimit,
		window: DefaultSendWindow,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, destinationHash string) error {
	key := "cred:throttle:" + destinationHash

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to track send rate")
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to track send rate")
		}
	}

	if count > int64(l.limit) {
		return identity.ErrTooManyRequests
	}

	return nil
}

// MemoryLimiter mirrors RedisLimiter for tests and single node use.
type MemoryLimiter struct {
	mu      sync.Mutex
	counts  map[string]int
	resetAt map[string]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counts:  map[string]int{},
		resetAt: map[string]time.Time{},
		limit:   DefaultSendLimit,
		window:  DefaultSendWindow,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, destinationHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if reset, ok := l.resetAt[destinationHash]; !ok || now.After(reset) {
		l.counts[destinationHash] = 0
		l.resetAt[destinationHash] = now.Add(l.window)
	}

	l.counts[destinationHash]++

	if l.counts[destinationHash] > l.limit {
		return identity.ErrTooManyRequests
	}

	return nil
}
