package cache

import (
	"context"
	"strings"
	"time"
)

// Store is the process-wide cache of remote state. Values are populated on
// first read, dropped on writes and torn down for a user on sign-out.
// Subscribers hear about every invalidation whose key matches their pattern.
type Store interface {
	// Get decodes the cached value for key into dst and reports whether it
	// was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Generation returns key's invalidation counter. Every Invalidate of key
	// (directly or through a prefix) advances it.
	Generation(ctx context.Context, key string) (int64, error)
	// SetIfGeneration stores value only while key's counter still equals
	// gen, and reports whether it did.
	SetIfGeneration(ctx context.Context, key string, value any, ttl time.Duration, gen int64) (bool, error)
	Invalidate(ctx context.Context, key string) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	// Subscribe registers cb for invalidations of pattern. A trailing "*"
	// matches any key with that prefix. The returned func unsubscribes.
	Subscribe(pattern string, cb func(key string)) func()
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

const DefaultTTL = 10 * time.Minute

// Load returns the cached value for key, calling loader and caching its
// result on a miss. Cache failures fall through to the loader. A result is
// not cached when key was invalidated while loader ran.
func Load[T any](ctx context.Context, s Store, key string, ttl time.Duration, loader func(ctx context.Context) (T, error)) (T, error) {
	if s == nil {
		return loader(ctx)
	}

	gen, genErr := s.Generation(ctx, key)
	var cached T
	if ok, err := s.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	val, err := loader(ctx)
	if err != nil {
		return val, err
	}
	if genErr == nil {
		_, _ = s.SetIfGeneration(ctx, key, val, ttl, gen)
	}
	return val, nil
}

func matches(pattern, key string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}
