// Package memcached provides a Memcached-backed store.Store, an
// alternative cache technology to the redis subpackage for deployments that
// already operate a Memcached fleet.
package memcached

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Store is a Memcached-based store.Store implementation.
type Store struct {
	client          *memcache.Client
	maxPayloadBytes int
}

// Config holds tunables for Store.
type Config struct {
	Servers []string
	// MaxPayloadBytes, if non-zero, rejects writes larger than this size.
	MaxPayloadBytes int
	// Timeout bounds individual Memcached operations. Defaults to 1s: an
	// unbounded timeout would let a down Memcached fleet hang every request
	// indefinitely.
	Timeout time.Duration
}

// New creates a Store with a 1-second operation timeout.
func New(servers ...string) *Store {
	return NewWithConfig(Config{Servers: servers, Timeout: time.Second})
}

// NewWithConfig creates a Store with custom configuration.
func NewWithConfig(cfg Config) *Store {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout
	return &Store{client: client, maxPayloadBytes: cfg.MaxPayloadBytes}
}

// ErrPayloadTooLarge indicates a write exceeded Config.MaxPayloadBytes.
var ErrPayloadTooLarge = fmt.Errorf("memcached: payload too large")

// Read returns the payload for id, or (nil, false, nil) if absent.
func (s *Store) Read(ctx context.Context, id string) ([]byte, bool, error) {
	item, err := s.client.Get(id)
	if err == memcache.ErrCacheMiss {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from memcached: %w", err)
	}
	return item.Value, true, nil
}

// maxDelta is the Memcached convention for the cutoff between relative
// (seconds-from-now) and absolute (Unix timestamp) expiration values.
const maxDelta = 30 * 24 * 60 * 60 // 30 days, in seconds

func expiration(ttl time.Duration) int32 {
	if ttl > maxDelta*time.Second {
		return int32(time.Now().Add(ttl).Unix())
	}
	if ttl < 0 {
		return 0
	}
	return int32(ttl.Seconds())
}

// Write overwrites any prior payload for id with the given bytes and TTL.
func (s *Store) Write(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	if s.maxPayloadBytes > 0 && len(payload) > s.maxPayloadBytes {
		return ErrPayloadTooLarge
	}
	err := s.client.Set(&memcache.Item{
		Key:        id,
		Value:      payload,
		Expiration: expiration(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to save to memcached: %w", err)
	}
	return nil
}

// Destroy removes any payload for id.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.client.Delete(id); err != nil && err != memcache.ErrCacheMiss {
		return fmt.Errorf("failed to delete from memcached: %w", err)
	}
	return nil
}

// GC is a no-op: Memcached expires entries natively via their Expiration.
func (s *Store) GC(ctx context.Context, maxTTL time.Duration) error {
	return nil
}
