package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	authkit "github.com/rentfold/authkit"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

// CAS on the stored identifier. Comparing and replacing in one script is
// what makes concurrent renewals from the same stale token race-free.
const rotateScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 2
`

var rotateLua = redis.NewScript(rotateScript)

// RedisStore implements [authkit.RefreshTokenStore] on a single Redis key
// per user. The key TTL tracks the refresh-token lifetime, so abandoned
// sessions expire server-side without any sweeper.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using the given client. prefix namespaces
// the keys, e.g. "rfr" yields "rfr:<userID>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rfr"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// CurrentID returns the stored identifier for userID.
func (s *RedisStore) CurrentID(ctx context.Context, userID string) (string, error) {
	id, err := s.redis.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", authkit.ErrNoRefreshRecord
		}
		return "", fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return id, nil
}

// Put unconditionally replaces the stored identifier. Whether or not a
// record existed, afterwards exactly one identifier is active for the user.
func (s *RedisStore) Put(ctx context.Context, userID, id string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(userID), id, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return nil
}

// Rotate atomically replaces the stored identifier if and only if it still
// equals previousID.
func (s *RedisStore) Rotate(ctx context.Context, userID, previousID, nextID string, ttl time.Duration) error {
	status, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID)},
		previousID,
		nextID,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	switch status {
	case rotateStatusNotFound:
		return authkit.ErrNoRefreshRecord
	case rotateStatusMismatch:
		return authkit.ErrRefreshReuse
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", authkit.ErrStoreUnavailable, status)
	}
}

// Delete removes the record. Deleting an absent record is not an error;
// logout must stay idempotent.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
