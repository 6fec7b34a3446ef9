package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("storage: key not found")

// CounterStore is the shared atomic key/value store every process instance
// talks to. All mutable shared state (window counters, abuse counters, block
// records, whitelist, breach cache, metrics) lives behind this interface, so
// the core itself needs no in-process locks.
type CounterStore interface {
	// IncrWithExpire atomically increments key and (re)sets its TTL in one
	// round trip. The two-step INCR+EXPIRE variant leaves a window where a
	// key can outlive its TTL after a crash, so implementations must make
	// this a single atomic operation.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// Keys enumerates keys matching a glob pattern. Used by admin and
	// analytics reads only, never on the request hot path.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Set membership, used for the IP whitelist.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// PushCapped prepends value to a list, trims the list to max entries and
	// refreshes its TTL, atomically enough for audit-log purposes.
	PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
