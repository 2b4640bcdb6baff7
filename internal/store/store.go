// Package store provides the shared key/value and counter state abstraction.
// All security-sensitive components (rate limiting, lockouts, OTP challenges,
// session tokens) persist through it so that, with Redis configured, several
// process instances share one logical state. Without Redis the in-process
// fallback is used and the service is single-instance only.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the durable backend cannot be reached
// during an operation that is required for correctness. Callers must treat
// it as a failure of the enclosing operation, never as "check passed".
var ErrUnavailable = errors.New("state store unavailable")

// TTLMissing is reported by RemainingTTL for absent or non-expiring keys.
const TTLMissing = time.Duration(-1)

// StateStore is the key/value and counter contract shared by the Redis
// backend and the in-process fallback. Implementations must behave
// identically from the caller's point of view.
type StateStore interface {
	// Get returns the value at key, or "" with found=false when absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set writes value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrWithExpiry atomically increments the counter at key and, when the
	// counter was just created, starts its expiry window. The increment and
	// the expiry arm together in a single backend round trip so concurrent
	// callers across processes never under-count.
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)

	// SetWithExpiry writes value with a mandatory expiry.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// RemainingTTL returns the time until key expires, or TTLMissing when
	// the key is absent or has no expiry.
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)

	// CompareAndDelete deletes key only when its current value equals
	// expected, reporting whether the delete happened. The comparison and
	// the delete are atomic; this is the single-use consumption primitive
	// for OTP challenges.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// HealthCheck reports whether the backing store is reachable. The
	// in-process fallback always reports true.
	HealthCheck(ctx context.Context) bool
}

// Sweeper is implemented by stores that hold expired entries in memory
// until something removes them. The Redis backend relies on native TTL
// expiry and does not implement it.
type Sweeper interface {
	SweepExpired() int
}
