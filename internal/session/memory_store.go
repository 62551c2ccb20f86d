package session

import (
	"context"
	"maps"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// MemoryStore keeps sessions in process. It is used when no Redis URL is
// configured, so sessions do not survive a restart.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (map[string]string, error) {
	value, found := s.cache.Get(id)
	if !found {
		return nil, ErrSessionNotFound
	}
	values, ok := value.(map[string]string)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return maps.Clone(values), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, values map[string]string, ttl time.Duration) error {
	if len(values) == 0 {
		s.cache.Delete(id)
		return nil
	}
	s.cache.Set(id, maps.Clone(values), ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
