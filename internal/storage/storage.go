package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a key doesn't exist or has expired
var ErrNotFound = errors.New("key not found")

// Store is the durable key/value layer shared by the popup orchestrator
// (attempt markers) and the session store (persisted auth state).
//
// A zero ttl means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Take deletes key and reports whether a live entry was removed.
	// Exactly one concurrent caller observes true for the same entry.
	Take(ctx context.Context, key string) (bool, error)
	Close() error
}

// Sweeper is implemented by backends that need expired entries removed
// explicitly. Redis expires keys on its own and doesn't implement it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Key joins a namespace and key parts with ':'
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
