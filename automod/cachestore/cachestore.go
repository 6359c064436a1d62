package cachestore

import (
	"context"
	"encoding/json"
	"time"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	// Like Set, but the entry expires after ttl instead of the store default. A ttl longer than the store default is clamped to it.
	SetTTL(ctx context.Context, name, key string, val string, ttl time.Duration) error
	Purge(ctx context.Context, name, key string) error
}

// Fetches and decodes a JSON value. Returns false (and no error) on a cache miss.
func GetJSON(ctx context.Context, s CacheStore, name, key string, out any) (bool, error) {
	raw, err := s.Get(ctx, name, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		// treat a corrupt entry as a miss; caller will re-populate
		return false, s.Purge(ctx, name, key)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s CacheStore, name, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if ttl > 0 {
		return s.SetTTL(ctx, name, key, string(b), ttl)
	}
	return s.Set(ctx, name, key, string(b))
}

func clampTTL(ttl, max time.Duration) time.Duration {
	if ttl <= 0 || ttl > max {
		return max
	}
	return ttl
}
