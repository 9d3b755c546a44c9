// Package cache memoises chat results per (user, normalised message) for a
// short TTL so that re-sent questions do not trigger a second LLM call.
//
// Values are opaque byte slices; callers encode their own result type. Two
// drivers exist: Memory (process-local) and Redis (shared between replicas).
package cache

import (
	"context"
	"strings"
	"time"
)

// DefaultTTL is the lifetime of a cached result.
const DefaultTTL = 5 * time.Minute

// Cache is the response cache contract.
type Cache interface {
	// Get returns the stored value and true, or (nil, false, nil) on a miss.
	Get(ctx context.Context, userID, message string) ([]byte, bool, error)
	// Put stores value for DefaultTTL (or the driver's configured TTL).
	Put(ctx context.Context, userID, message string, value []byte) error
	// Purge drops expired entries and returns how many were removed.
	// Drivers with native expiry return 0.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// Normalize lowercases and trims a message for use in a cache key.
func Normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

// Key builds the cache key for a user and message.
func Key(userID, message string) string {
	return userID + "\x00" + Normalize(message)
}
