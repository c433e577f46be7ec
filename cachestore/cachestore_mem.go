package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Process-local cache. Entries expire after the TTL or when evicted by
// capacity, whichever comes first.
type MemCacheStore struct {
	lru *expirable.LRU[string, string]
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		lru: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func (s *MemCacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, ok := s.lru.Get(key)
	countLookup("mem", ok)
	return val, ok, nil
}

func (s *MemCacheStore) Set(ctx context.Context, key, val string) error {
	s.lru.Add(key, val)
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemCacheStore) Close() error {
	s.lru.Purge()
	return nil
}
