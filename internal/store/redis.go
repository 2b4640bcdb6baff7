package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry arms the window in the same round trip as the increment so
// two processes racing on a fresh counter cannot both observe count==1
// without an expiry in place.
var incrWithExpiryScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisStore implements StateStore on a Redis backend. All keys are
// namespaced with the configured prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ StateStore = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed state store.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// Get returns the value at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return value, true, nil
}

// Set writes value at key; zero ttl persists without expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// IncrWithExpiry atomically increments the counter and arms its window.
func (s *RedisStore) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := incrWithExpiryScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrUnavailable, key, err)
	}
	return count, nil
}

// SetWithExpiry writes value with a mandatory expiry.
func (s *RedisStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// RemainingTTL returns the time until key expires.
func (s *RedisStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return TTLMissing, fmt.Errorf("%w: pttl %s: %v", ErrUnavailable, key, err)
	}
	// PTTL reports -2 for a missing key and -1 for no expiry.
	if ttl < 0 {
		return TTLMissing, nil
	}
	return ttl, nil
}

// CompareAndDelete consumes key iff its value equals expected.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: consume %s: %v", ErrUnavailable, key, err)
	}
	return deleted == 1, nil
}

// HealthCheck pings the backend.
func (s *RedisStore) HealthCheck(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}
