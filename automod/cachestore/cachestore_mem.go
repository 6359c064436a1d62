package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	val       string
	expiresAt time.Time
}

// In-process cache. The LRU enforces capacity and the default TTL; shorter per-entry TTLs are checked on read.
type MemCacheStore struct {
	Data *expirable.LRU[string, memEntry]
	TTL  time.Duration
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) MemCacheStore {
	return MemCacheStore{
		Data: expirable.NewLRU[string, memEntry](capacity, nil, ttl),
		TTL:  ttl,
	}
}

func memCacheKey(name, key string) string {
	return name + "/" + key
}

func (s MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	k := memCacheKey(name, key)
	v, ok := s.Data.Get(k)
	if !ok {
		return "", nil
	}
	if !v.expiresAt.IsZero() && time.Now().After(v.expiresAt) {
		s.Data.Remove(k)
		return "", nil
	}
	return v.val, nil
}

func (s MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.Data.Add(memCacheKey(name, key), memEntry{val: val})
	return nil
}

func (s MemCacheStore) SetTTL(ctx context.Context, name, key string, val string, ttl time.Duration) error {
	ttl = clampTTL(ttl, s.TTL)
	s.Data.Add(memCacheKey(name, key), memEntry{val: val, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (s MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.Data.Remove(memCacheKey(name, key))
	return nil
}
