package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// MemoryStore keeps entries for single-instance deployments. It has no count
// cap: a live entry is never evicted, and maxTTL alone bounds how long any
// entry is held. Each entry also remembers its own expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, time.Time]
	now     func() time.Time
}

func NewMemoryStore(maxTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: expirable.NewLRU[string, time.Time](0, nil, maxTTL),
		now:     time.Now,
	}
}

func (s *MemoryStore) Set(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Add(key, s.now().Add(ttl))
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.entries.Get(key)
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiresAt) {
		s.entries.Remove(key)
		return false, nil
	}
	return true, nil
}
