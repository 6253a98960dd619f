package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces dedup keys the same way blackboard.ArtefactKey namespaces artefact
// keys — "agentcore:dedup:{fingerprint}" — so a shared Redis instance can host other
// consumers without key collisions.
const keyPrefix = "agentcore:dedup:"

func dedupKey(fingerprint string) string {
	return keyPrefix + fingerprint
}

// redisClient is the minimal subset of *redis.Client this service needs. Defining it as an
// interface (rather than depending on *redis.Client directly) lets tests substitute a
// hand-rolled fake instead of a full in-memory Redis server.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	PExpire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// RedisService is the Redis-backed Deduplication Service backing, grounded on
// pkg/blackboard/client.go's Client — namespaced keys, redis.Nil sentinel checking via
// errors.Is. TryRegister is implemented as SetNX with the TTL (atomic claim); on conflict
// it reads the stored job id and, only when it matches, refreshes the TTL with PExpire,
// since go-redis's SetNX does not itself support "extend TTL of an existing key I already
// own" semantics needed for same-job re-registration.
type RedisService struct {
	rdb redisClient
}

// NewRedisService wraps an existing Redis client. Accepts the redisClient subset so the
// caller can pass either a real *redis.Client or, in tests, a fake.
func NewRedisService(rdb redisClient) *RedisService {
	return &RedisService{rdb: rdb}
}

func (s *RedisService) TryRegister(ctx context.Context, fingerprint, jobID string, ttl time.Duration) (bool, error) {
	key := dedupKey(fingerprint)

	claimed, err := s.rdb.SetNX(ctx, key, jobID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: SetNX failed for %s: %w", fingerprint, err)
	}
	if claimed {
		return true, nil
	}

	existing, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Raced: the key expired or was released between SetNX and Get. Retry the claim.
		claimed, err := s.rdb.SetNX(ctx, key, jobID, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("dedup: SetNX retry failed for %s: %w", fingerprint, err)
		}
		return claimed, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: Get failed for %s: %w", fingerprint, err)
	}

	if existing != jobID {
		return false, nil
	}

	// Same job re-registering (e.g. a retry attempt) refreshes its own claim.
	if err := s.rdb.PExpire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("dedup: PExpire failed for %s: %w", fingerprint, err)
	}
	return true, nil
}

func (s *RedisService) Release(ctx context.Context, fingerprint string) error {
	if err := s.rdb.Del(ctx, dedupKey(fingerprint)).Err(); err != nil {
		return fmt.Errorf("dedup: Del failed for %s: %w", fingerprint, err)
	}
	return nil
}

func (s *RedisService) GetActive(ctx context.Context, fingerprint string) (string, bool, error) {
	jobID, err := s.rdb.Get(ctx, dedupKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup: Get failed for %s: %w", fingerprint, err)
	}
	return jobID, true, nil
}
