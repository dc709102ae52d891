package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/current-weather-service/internal/models"
)

// Entry is one cached snapshot and the time the coordinator stored it.
// Entries are replaced wholesale, never mutated.
type Entry struct {
	Value    models.WeatherSnapshot `json:"value"`
	StoredAt time.Time              `json:"storedAt"`
}

// Store defines the interface for snapshot caching backends.
// Get returns (entry, true, nil) when an entry exists, (zero, false, nil) when absent and
// (zero, false, err) when the backend failed. Freshness is decided by the caller from
// StoredAt; ttl only bounds how long a backend keeps the entry around.
// Only InMemoryStore keeps a hit off the network; the memcached and redis backends pay a
// round trip per lookup and keep the entry across restarts.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// Pinger is implemented by stores backed by a remote server. Used for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type keyedEntry struct {
	key   string
	entry Entry
}

// InMemoryStore holds a single entry behind an atomic pointer. Set replaces it wholesale,
// so readers see either the previous entry or the new one, never a partial write.
// A Set under a different key evicts the previous entry.
type InMemoryStore struct {
	current atomic.Pointer[keyedEntry]
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Get returns the stored entry when it was written under key.
func (s *InMemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	cur := s.current.Load()
	if cur == nil || cur.key != key {
		return Entry{}, false, nil
	}
	return cur.entry, true, nil
}

// Set replaces the stored entry. ttl is ignored; the process lifetime bounds retention.
func (s *InMemoryStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.current.Store(&keyedEntry{key: key, entry: entry})
	return nil
}
