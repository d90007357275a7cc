package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "video-api:ratelimit:"

// RedisStore shares windows between replicas. A window is a counter key
// that expires when the window ends.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Hit(ctx context.Context, key string, d time.Duration) (Usage, error) {
	key = redisKeyPrefix + key

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Usage{}, errors.Wrap(err, "failed to increment rate limit counter")
	}

	if count == 1 {
		if err := s.rdb.PExpire(ctx, key, d).Err(); err != nil {
			return Usage{}, errors.Wrap(err, "failed to set rate limit window")
		}
		return Usage{Count: count, ResetIn: d}, nil
	}

	ttl, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return Usage{}, errors.Wrap(err, "failed to read rate limit window")
	}

	// a counter without expiry would block the client forever
	if ttl < 0 {
		if err := s.rdb.PExpire(ctx, key, d).Err(); err != nil {
			return Usage{}, errors.Wrap(err, "failed to set rate limit window")
		}
		ttl = d
	}

	return Usage{Count: count, ResetIn: ttl}, nil
}
