// Package redis provides a Redis-backed store.Store.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Store is a Redis-based store.Store implementation. Payload bytes are
// stored verbatim: the engine is responsible for any envelope encryption
// upstream of this store, so this package never marshals or interprets the
// payload.
type Store struct {
	rc     *goredis.Client
	prefix string
}

// New returns a new Store using the provided Redis client. Keys are stored
// with the provided prefix.
func New(rc *goredis.Client, prefix string) *Store {
	return &Store{rc: rc, prefix: prefix}
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

// Read returns the payload for id, or (nil, false, nil) if absent or
// expired.
func (s *Store) Read(ctx context.Context, id string) ([]byte, bool, error) {
	val, err := s.rc.Get(ctx, s.key(id)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %v", err)
	}
	return val, true, nil
}

// Write overwrites any prior payload for id, setting the given TTL.
func (s *Store) Write(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	if err := s.rc.Set(ctx, s.key(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %v", err)
	}
	return nil
}

// Destroy removes any payload for id.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.rc.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %v", err)
	}
	return nil
}

// GC is a no-op: Redis expires keys natively via their TTL.
func (s *Store) GC(ctx context.Context, maxTTL time.Duration) error {
	return nil
}
