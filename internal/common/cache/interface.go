package cache

import (
	"context"
	"time"
)

// Cache defines the unified interface for cache operations.
// This abstraction allows switching between different cache implementations
// (Redis, local memory) without changing business logic.
type Cache interface {
	BasicOps
	ListOps
	ZSetOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key; missing keys return ""
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist (atomic operation)
	// Returns true if the key was set, false if it already existed
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists checks if one or more keys exist
	// Returns the number of keys that exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Incr increments the integer value of a key by 1
	Incr(ctx context.Context, key string) (int64, error)
}

// ListOps defines list operations, used by the dispatch queue
type ListOps interface {
	// LPush prepends values to the list stored at key
	LPush(ctx context.Context, key string, values ...interface{}) error

	// RPush appends values to the list stored at key
	RPush(ctx context.Context, key string, values ...interface{}) error

	// LMove atomically pops from one list and pushes onto another.
	// srcPos/dstPos are "LEFT" or "RIGHT". Returns "" when source is empty.
	LMove(ctx context.Context, src, dst, srcPos, dstPos string) (string, error)

	// BLMove is the blocking variant of LMove with the given timeout.
	// Returns "" when the timeout elapses with no element.
	BLMove(ctx context.Context, src, dst, srcPos, dstPos string, timeout time.Duration) (string, error)

	// LRem removes count occurrences of value from the list stored at key
	LRem(ctx context.Context, key string, count int64, value interface{}) error

	// LLen returns the length of the list stored at key
	LLen(ctx context.Context, key string) (int64, error)
}

// ZMember is a sorted set member with score
type ZMember struct {
	Member string
	Score  float64
}

// ZSetOps defines sorted set operations, used for worker leases
type ZSetOps interface {
	// ZAdd adds members with scores to the sorted set stored at key
	ZAdd(ctx context.Context, key string, members ...ZMember) error

	// ZRem removes members from the sorted set stored at key
	ZRem(ctx context.Context, key string, members ...string) error

	// ZScore returns the score of member; missing members return an error
	ZScore(ctx context.Context, key, member string) (float64, error)

	// ZRangeByScore returns members with scores between min and max inclusive
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// ZCard returns the number of members in the sorted set
	ZCard(ctx context.Context, key string) (int64, error)
}
