package rom

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is the interface for caching materialized relations.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory). contrib/badgercache provides an
// embedded implementation.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a materialized relation in a Cache.
type CacheKey struct {
	Dataset  string
	Relation string
	View     string
	Filter   string
	Args     []any
}

// Prefix returns the key prefix shared by every entry of the dataset.
// Commands writing to a dataset invalidate by prefix.
func (k CacheKey) Prefix() string {
	return "rom:" + k.Dataset + ":"
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	args := make([]string, len(k.Args))
	for i, a := range k.Args {
		args[i] = fmt.Sprint(a)
	}
	return k.Prefix() + k.Relation + ":" + k.View + ":" + k.Filter + ":" + strings.Join(args, ",")
}
