package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eugenenazirov/shipping-rates/internal/carrier"
)

// Store persists rate responses for a limited time.
type Store interface {
	Get(ctx context.Context, key string) (*carrier.RateResponse, bool, error)
	Set(ctx context.Context, key string, resp *carrier.RateResponse, ttl time.Duration) error
}

type memoryEntry struct {
	resp      *carrier.RateResponse
	expiresAt time.Time
}

// MemoryStore keeps responses in-process and guards access with a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]memoryEntry
	capacity int
	clock    func() time.Time
}

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{
		items:    make(map[string]memoryEntry, capacity),
		capacity: capacity,
		clock:    time.Now,
	}
}

// Get returns a copy of the cached response for key.
func (s *MemoryStore) Get(_ context.Context, key string) (*carrier.RateResponse, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok || !s.clock().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.resp.Clone(), true, nil
}

// Set stores a copy of resp. When the store is full, expired entries are
// dropped first, then the entry closest to expiry.
func (s *MemoryStore) Set(_ context.Context, key string, resp *carrier.RateResponse, ttl time.Duration) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists && len(s.items) >= s.capacity {
		s.evictLocked(now)
	}
	s.items[key] = memoryEntry{resp: resp.Clone(), expiresAt: now.Add(ttl)}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range s.items {
		if !now.Before(e.expiresAt) {
			delete(s.items, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(s.items) >= s.capacity && oldestKey != "" {
		delete(s.items, oldestKey)
	}
}

// RedisStore shares cached responses between service instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store using client. Keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "shipping-rates"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:rates:{%s}", s.prefix, key)
}

// Get loads and decodes the response stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*carrier.RateResponse, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var resp carrier.RateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached rates: %w", err)
	}
	return &resp, true, nil
}

// Set encodes resp and stores it with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, resp *carrier.RateResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
