// Package cache provides the read-through cache used for chatroom listings.
//
// The Store interface abstracts the backing store so a single-process
// deployment can run on the in-memory backend while horizontally scaled
// deployments share a Redis instance. Values are opaque bytes; the service
// layer owns (de)serialization. An absent or expired entry is a miss, never
// an error.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is a TTL'd byte cache. Implementations must be safe for concurrent
// use.
type Store interface {
	// Get returns the value for key and whether it was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// ChatroomListKey returns the cache key holding a user's chatroom list
// snapshot.
func ChatroomListKey(userID string) string {
	return fmt.Sprintf("user:%s:chatrooms", userID)
}
